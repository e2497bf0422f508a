package blob

import (
	"io"

	storage "github.com/supabase-community/storage-go"
)

type SupabaseStore struct {
	client *storage.Client
	bucket string
}

func NewSupabaseStore(url, key, bucket string) *SupabaseStore {
	return &SupabaseStore{
		client: storage.NewClient(url+"/storage/v1", key, nil),
		bucket: bucket,
	}
}

func (s *SupabaseStore) Upload(objectName string, r io.Reader, contentType string) (string, error) {
	upsert := false
	opts := storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}

	if _, err := s.client.UploadFile(s.bucket, objectName, r, opts); err != nil {
		return "", err
	}

	return s.client.GetPublicUrl(s.bucket, objectName).SignedURL, nil
}
