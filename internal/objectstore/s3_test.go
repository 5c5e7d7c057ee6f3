package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLVirtualHosted(t *testing.T) {
	s := &S3Store{bucket: "primepisodes-assets", region: "us-east-1"}
	assert.Equal(t,
		"https://primepisodes-assets.s3.us-east-1.amazonaws.com/shows/s1/scene-library/abc/clip.mp4",
		s.URL("shows/s1/scene-library/abc/clip.mp4"))
}

func TestURLCustomEndpointPathStyle(t *testing.T) {
	s := &S3Store{bucket: "primepisodes-assets", region: "us-east-1", endpoint: "http://localhost:4566/"}
	assert.Equal(t,
		"http://localhost:4566/primepisodes-assets/thumbs/t.jpg",
		s.URL("thumbs/t.jpg"))
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
