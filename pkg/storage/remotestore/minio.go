package remotestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioDialer maps the directory-oriented Session onto an S3 bucket. Keys
// are paths without the leading slash; directories are key prefixes.
type minioDialer struct {
	name   string
	client *minio.Client
	bucket string
}

func newMinioDialer(cfg Config) (Dialer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store %s: bucket is required", cfg.Name)
	}
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioDialer{name: cfg.Name, client: cl, bucket: cfg.Bucket}, nil
}

func (d *minioDialer) Name() string { return d.name }

// Dial verifies the bucket is reachable; the HTTP client itself is shared.
func (d *minioDialer) Dial(ctx context.Context) (Session, error) {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", d.bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", d.bucket, ErrNotFound)
	}
	return &minioSession{client: d.client, bucket: d.bucket, cwd: "/"}, nil
}

type minioSession struct {
	client *minio.Client
	bucket string
	cwd    string
	closed bool
}

func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

func (m *minioSession) ChangeDir(ctx context.Context, dir string) error {
	if m.closed {
		return ErrClosed
	}
	target := resolve(m.cwd, dir)
	prefix := objectKey(target)
	if prefix != "" {
		prefix += "/"
	}
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	found := false
	for obj := range m.client.ListObjects(lctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return obj.Err
		}
		found = true
		break
	}
	if !found && prefix != "" {
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	m.cwd = target
	return nil
}

// MakeDir is a no-op: prefixes exist as soon as an object is written under them.
func (m *minioSession) MakeDir(context.Context, string) error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *minioSession) Stat(ctx context.Context, name string) (FileInfo, error) {
	if m.closed {
		return FileInfo{}, ErrClosed
	}
	key := objectKey(resolve(m.cwd, name))
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return FileInfo{}, mapMinioError(err)
	}
	return FileInfo{Name: path.Base(info.Key), Size: info.Size}, nil
}

func (m *minioSession) List(ctx context.Context, dir, pattern string) ([]string, error) {
	if m.closed {
		return nil, ErrClosed
	}
	prefix := objectKey(resolve(m.cwd, dir))
	if prefix != "" {
		prefix += "/"
	}
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *minioSession) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if m.closed {
		return nil, ErrClosed
	}
	key := objectKey(resolve(m.cwd, name))
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, mapMinioError(err)
	}
	return m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
}

func (m *minioSession) Write(ctx context.Context, remotePath string, r io.Reader) error {
	if m.closed {
		return ErrClosed
	}
	key := objectKey(resolve(m.cwd, remotePath))
	opts := minio.PutObjectOptions{ContentType: contentTypeFor(key)}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, readerSize(r), opts)
	return err
}

// readerSize reports the remaining length of in-memory readers and -1 for
// streams of unknown length.
func readerSize(r io.Reader) int64 {
	if l, ok := r.(interface{ Len() int }); ok {
		return int64(l.Len())
	}
	return -1
}

func (m *minioSession) Close() error {
	m.closed = true
	return nil
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func mapMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
