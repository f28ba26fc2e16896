package datastores

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/metrics"
)

type s3Store struct {
	client       *minio.Client
	bucket       string
	prefix       string
	storageClass string
	partSize     uint64
}

func NewS3Store(ds config.DatastoreConfig) (Store, error) {
	endpoint := ds.Options["endpoint"]
	bucket := ds.Options["bucketName"]
	accessKeyId := ds.Options["accessKeyId"]
	accessSecret := ds.Options["accessSecret"]
	region := ds.Options["region"]
	storageClass, hasStorageClass := ds.Options["storageClass"]
	useSslStr, hasSsl := ds.Options["ssl"]
	partSizeStr, hasPartSize := ds.Options["partSizeBytes"]

	if endpoint == "" || bucket == "" {
		return nil, errors.New("s3 datastore needs an endpoint and bucketName")
	}
	if !hasStorageClass {
		storageClass = "STANDARD"
	}

	useSsl := true
	if hasSsl && useSslStr != "" {
		useSsl, _ = strconv.ParseBool(useSslStr)
	}

	var partSize uint64 = 16 * 1024 * 1024
	if hasPartSize && partSizeStr != "" {
		if v, err := strconv.ParseUint(partSizeStr, 10, 64); err == nil && v >= 5*1024*1024 {
			partSize = v
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Region: region,
		Secure: useSsl,
		Creds:  credentials.NewStaticV4(accessKeyId, accessSecret, ""),
	})
	if err != nil {
		return nil, err
	}

	return &s3Store{
		client:       client,
		bucket:       bucket,
		prefix:       ds.Path,
		storageClass: storageClass,
		partSize:     partSize,
	}, nil
}

func (s *s3Store) Type() string {
	return "s3"
}

func (s *s3Store) objectName(p string) (string, error) {
	if !IsValidPath(p) {
		return "", common.ErrInvalidPath
	}
	if s.prefix == "" {
		return p, nil
	}
	return path.Join(s.prefix, p), nil
}

func isNotFound(err error) bool {
	var merr minio.ErrorResponse
	if errors.As(err, &merr) {
		return merr.Code == "NoSuchKey" || merr.StatusCode == http.StatusNotFound
	}
	return false
}

// Put uploads the object in one PutObject call; S3 makes it visible only
// once complete.
func (s *s3Store) Put(ctx context.Context, p string, r io.Reader) (int64, error) {
	objectName, err := s.objectName(p)
	if err != nil {
		return 0, err
	}
	// minio-go only sends quoted etags in If-None-Match, so there is no
	// conditional create here and this check is best effort. Each path embeds
	// an id the dedup index reserves before anything is written, so only one
	// writer ever targets a given path.
	exists, err := s.Exists(ctx, p)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, common.ErrPathExists
	}

	metrics.StoreOperations.WithLabelValues("s3", "put").Inc()
	info, err := s.client.PutObject(ctx, s.bucket, objectName, r, -1, minio.PutObjectOptions{
		StorageClass: s.storageClass,
		PartSize:     s.partSize,
	})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (s *s3Store) Get(ctx context.Context, p string) (io.ReadSeekCloser, error) {
	objectName, err := s.objectName(p)
	if err != nil {
		return nil, err
	}
	metrics.StoreOperations.WithLabelValues("s3", "get").Inc()
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; stat it so a missing object fails here
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, common.ErrMediaNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *s3Store) Delete(ctx context.Context, p string) error {
	objectName, err := s.objectName(p)
	if err != nil {
		return err
	}
	metrics.StoreOperations.WithLabelValues("s3", "delete").Inc()
	err = s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *s3Store) Exists(ctx context.Context, p string) (bool, error) {
	objectName, err := s.objectName(p)
	if err != nil {
		return false, err
	}
	metrics.StoreOperations.WithLabelValues("s3", "stat").Inc()
	_, err = s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}
