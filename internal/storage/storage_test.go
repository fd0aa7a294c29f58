package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	loc, err := ParseURL("s3://catalog-images/shoes/123.jpg")
	require.NoError(t, err)
	assert.Equal(t, "catalog-images", loc.Bucket)
	assert.Equal(t, "shoes/123.jpg", loc.Key)
	assert.Equal(t, "s3://catalog-images/shoes/123.jpg", loc.String())

	for _, bad := range []string{
		"https://example.com/a.jpg",
		"s3://",
		"s3://bucket",
		"s3://bucket/",
		"s3:///key",
	} {
		_, err := ParseURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsObjectURL(t *testing.T) {
	assert.True(t, IsObjectURL("s3://b/k"))
	assert.True(t, IsObjectURL("S3://b/k"))
	assert.False(t, IsObjectURL("http://b/k"))
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acct.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-east-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType(""))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "host", normalizeEndpoint("https://host/path/x"))
}
