// Package storage opens entity files and exports by location. A location
// is a local path or an s3://bucket/key URI.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cell-tracer/internal/logger"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures the S3 client. Zero values fall back to the default
// AWS credential chain and region us-east-1.
type S3Config struct {
	Region    string
	Endpoint  string // optional, e.g. a MinIO URL
	PathStyle bool
	// HTTPClient replaces the transport, mostly for tests.
	HTTPClient *http.Client
}

// Environment variables read by S3ConfigFromEnv:
//
//	CELLTRACER_S3_REGION=<region> (default us-east-1)
//	CELLTRACER_S3_ENDPOINT=<url> (optional)
//	CELLTRACER_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// S3ConfigFromEnv reads S3Config from the process environment.
func S3ConfigFromEnv() S3Config {
	return S3Config{
		Region:    os.Getenv("CELLTRACER_S3_REGION"),
		Endpoint:  os.Getenv("CELLTRACER_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("CELLTRACER_S3_PATH_STYLE"), "true"),
	}
}

// Location is a parsed storage URI.
type Location struct {
	Bucket string // empty for local files
	Key    string // object key, or the local path
}

// IsS3 reports whether the location names an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// Parse splits uri into a Location. Anything without the s3 scheme is a
// local path.
func Parse(uri string) (Location, error) {
	if !strings.HasPrefix(uri, "s3://") {
		if uri == "" {
			return Location{}, fmt.Errorf("empty location")
		}
		return Location{Key: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", uri, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("invalid location %q: want s3://bucket/key", uri)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// Storage resolves locations to readers and writers. The S3 client is
// built on first use.
type Storage struct {
	cfg S3Config
	log zerolog.Logger

	once   sync.Once
	client *s3.Client
	err    error
}

// New returns a Storage using cfg for S3 locations.
func New(cfg S3Config, log zerolog.Logger) *Storage {
	return &Storage{cfg: cfg, log: logger.Component(log, "storage")}
}

func (s *Storage) s3Client(ctx context.Context) (*s3.Client, error) {
	s.once.Do(func() {
		region := s.cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			s.err = fmt.Errorf("failed to load aws config: %w", err)
			return
		}
		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = s.cfg.PathStyle
			if s.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			}
			if s.cfg.HTTPClient != nil {
				o.HTTPClient = s.cfg.HTTPClient
			}
		})
	})
	return s.client, s.err
}

// Open returns a reader for uri.
func (s *Storage) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	if !loc.IsS3() {
		return os.Open(loc.Key)
	}
	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &loc.Bucket, Key: &loc.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", loc, err)
	}
	s.log.Debug().Str("location", loc.String()).Msg("opened object")
	return out.Body, nil
}

// Writer is a pending object. Close commits the written bytes and Abort
// discards them, leaving any existing object untouched. Both are
// idempotent and Abort after Close does nothing.
type Writer interface {
	io.WriteCloser
	Abort() error
}

// Create returns a writer for uri. Local files are written to a temporary
// file beside the target and renamed over it by Close. S3 writes are
// spooled to a temporary file and uploaded by Close.
func (s *Storage) Create(ctx context.Context, uri string) (Writer, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	if !loc.IsS3() {
		return createLocal(loc.Key)
	}
	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	spool, err := os.CreateTemp("", "celltracer-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return &upload{ctx: ctx, client: client, loc: loc, spool: spool, log: s.log}, nil
}

// Write creates uri, hands it to fn and commits it only when fn succeeds.
func (s *Storage) Write(ctx context.Context, uri string, fn func(io.Writer) error) error {
	w, err := s.Create(ctx, uri)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", uri, err)
	}
	return commit(w, fn, s.log)
}

// WriteFile is Write for a local path.
func WriteFile(path string, fn func(io.Writer) error) error {
	w, err := createLocal(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return commit(w, fn, zerolog.Nop())
}

func commit(w Writer, fn func(io.Writer) error, log zerolog.Logger) error {
	if err := fn(w); err != nil {
		if aerr := w.Abort(); aerr != nil {
			log.Warn().Err(aerr).Msg("failed to discard partial write")
		}
		return err
	}
	return w.Close()
}

type localFile struct {
	file *os.File
	path string
	done bool
}

func createLocal(path string) (*localFile, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localFile{file: file, path: path}, nil
}

func (f *localFile) Write(p []byte) (int, error) {
	return f.file.Write(p)
}

// Close renames the temporary file over the target.
func (f *localFile) Close() error {
	if f.done {
		return nil
	}
	f.done = true
	tmp := f.file.Name()
	err := f.file.Chmod(0o644)
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, f.path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}

// Abort removes the temporary file.
func (f *localFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.file.Close()
	return os.Remove(f.file.Name())
}

type upload struct {
	ctx    context.Context
	client *s3.Client
	loc    Location
	spool  *os.File
	log    zerolog.Logger
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	return u.spool.Write(p)
}

// Abort removes the spool file without uploading.
func (u *upload) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.spool.Close()
	return os.Remove(u.spool.Name())
}

// Close uploads the spooled bytes and removes the spool file.
func (u *upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	defer os.Remove(u.spool.Name())
	defer u.spool.Close()

	size, err := u.spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := u.spool.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = u.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket:        &u.loc.Bucket,
		Key:           &u.loc.Key,
		Body:          u.spool,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", u.loc, err)
	}
	u.log.Info().Str("location", u.loc.String()).Int64("bytes", size).Msg("uploaded object")
	return nil
}
