// Package s3 exposes an S3 bucket as a media backend.
//
// The bucket is browsed like a directory tree: "/" delimited common prefixes
// are containers and objects are items. An object's kind is derived from its
// extension; objects that are not audio, video or images are not exposed.
// Item URLs are presigned GET URLs when a presign TTL is configured, plain
// s3://bucket/key URLs otherwise. Search is not supported.
package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/media"
)

// API is the subset of the S3 client used by the backend.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner signs GET requests for item URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configure a Backend.
type Options struct {
	Client    API
	Presigner Presigner

	Bucket string

	// Prefix roots the tree below a key prefix. A trailing "/" is implied.
	Prefix string

	// PresignTTL is the lifetime of presigned URLs. 0 disables presigning.
	PresignTTL time.Duration
}

// Backend serves the objects of one bucket.
type Backend struct {
	id     string
	name   string
	client API
	signer Presigner
	bucket string
	prefix string
	ttl    time.Duration
}

// New creates a backend over an existing client.
func New(id, name string, opts Options) (*Backend, error) {
	if opts.Client == nil {
		return nil, errors.New("s3 client is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	prefix := strings.Trim(opts.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Backend{
		id:     id,
		name:   name,
		client: opts.Client,
		signer: opts.Presigner,
		bucket: opts.Bucket,
		prefix: prefix,
		ttl:    opts.PresignTTL,
	}, nil
}

func (b *Backend) ID() string   { return b.id }
func (b *Backend) Name() string { return b.name }

func (b *Backend) Operations() media.Operations {
	return media.OpResolve | media.OpBrowse
}

func (b *Backend) Close() error {
	return nil
}

// key maps a node ID to an object key.
func (b *Backend) key(id string) string {
	return b.prefix + id
}

// listPrefix is the key prefix of a container's children.
func (b *Backend) listPrefix(id string) string {
	if id == "" {
		return b.prefix
	}
	return b.prefix + id + "/"
}

// mediaTypes covers media extensions missing from Go's builtin table, which
// otherwise depends on the host's mime.types.
var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".ogv":  "video/ogg",
	".heic": "image/heic",
}

// kindOf classifies an object by its extension.
func kindOf(key string) (media.Kind, string) {
	ext := strings.ToLower(path.Ext(key))
	t, ok := mediaTypes[ext]
	if !ok {
		t, _, _ = strings.Cut(mime.TypeByExtension(ext), ";")
	}
	switch {
	case strings.HasPrefix(t, "audio/"):
		return media.KindAudio, t
	case strings.HasPrefix(t, "video/"):
		return media.KindVideo, t
	case strings.HasPrefix(t, "image/"):
		return media.KindImage, t
	default:
		return media.KindUnknown, t
	}
}

func title(id string) string {
	base := path.Base(id)
	if ext := path.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func (b *Backend) url(ctx context.Context, key string) string {
	if b.signer != nil && b.ttl > 0 {
		req, err := b.signer.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(b.ttl))
		if err == nil {
			return req.URL
		}
		logger.Warn("Failed to presign %s/%s: %v", b.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key)
}

func (b *Backend) item(ctx context.Context, id string, kind media.Kind, mimeType string, size int64, modified *time.Time) *media.Node {
	n := media.NewNode(b.id, id, kind).
		SetTitle(title(id)).
		SetString(media.KeyMIME, mimeType).
		SetString(media.KeyURL, b.url(ctx, b.key(id))).
		SetInt(media.KeySize, size)
	if modified != nil {
		n.SetTime(media.KeyPublicationDate, *modified)
	}
	return n
}

func (b *Backend) container(id string) *media.Node {
	n := media.NewNode(b.id, id, media.KindContainer)
	if id != "" {
		n.SetTitle(path.Base(id))
	}
	return n
}

// list returns the containers of id followed by its media objects, both in
// key order.
func (b *Backend) list(ctx context.Context, id string) ([]*media.Node, error) {
	prefix := b.listPrefix(id)
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var containers, items []*media.Node
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", b.bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			child := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), b.prefix), "/")
			if child == "" {
				continue
			}
			containers = append(containers, b.container(child))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				// Folder marker object.
				continue
			}
			kind, mimeType := kindOf(key)
			if kind == media.KindUnknown {
				continue
			}
			items = append(items, b.item(ctx, strings.TrimPrefix(key, b.prefix), kind, mimeType, aws.ToInt64(obj.Size), obj.LastModified))
		}
	}
	return append(containers, items...), nil
}

func (b *Backend) lookup(ctx context.Context, node *media.Node) (*media.Node, error) {
	if node.IsRoot() || node.IsContainer() {
		return b.container(node.ID), nil
	}

	key := b.key(node.ID)
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("object %q: %w", key, media.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to head s3://%s/%s: %w", b.bucket, key, err)
	}

	kind, mimeType := kindOf(key)
	if ct := aws.ToString(out.ContentType); ct != "" && ct != "binary/octet-stream" && ct != "application/octet-stream" {
		mimeType = ct
	}
	return b.item(ctx, node.ID, kind, mimeType, aws.ToInt64(out.ContentLength), out.LastModified), nil
}

func (b *Backend) Resolve(ctx context.Context, node *media.Node, keys []media.Key, cb media.ResolveFunc) media.Operation {
	return media.ResolveAsync(ctx, func(ctx context.Context) (*media.Node, error) {
		return b.lookup(ctx, node)
	}, cb)
}

func (b *Backend) Browse(ctx context.Context, container *media.Node, keys []media.Key, opts media.Options, cb media.BrowseFunc) media.Operation {
	return media.Stream(ctx, opts, func(ctx context.Context) ([]*media.Node, error) {
		return b.list(ctx, container.ID)
	}, cb)
}

func (b *Backend) Search(ctx context.Context, query string, keys []media.Key, opts media.Options, cb media.BrowseFunc) media.Operation {
	return media.Stream(ctx, opts, func(context.Context) ([]*media.Node, error) {
		return nil, media.ErrUnsupported
	}, cb)
}
