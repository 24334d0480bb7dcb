package docstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mmynk/gasbottle/internal/models"
)

var _ Store = (*Client)(nil)

// Client is a Store backed by the document service over Connect.
type Client struct {
	get    *connect.Client[wrapperspb.StringValue, structpb.Struct]
	put    *connect.Client[structpb.Struct, emptypb.Empty]
	delete *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	watch  *connect.Client[wrapperspb.StringValue, structpb.Struct]
}

// NewClient creates a client for the document service at baseURL.
// Authentication is supplied through opts, typically an interceptor that
// sets the bearer token.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote url %q: missing host", baseURL)
	}
	base := strings.TrimSuffix(baseURL, "/")

	return &Client{
		get:    connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, base+GetProcedure, opts...),
		put:    connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, base+PutProcedure, opts...),
		delete: connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, base+DeleteProcedure, opts...),
		watch:  connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, base+WatchProcedure, opts...),
	}, nil
}

func (c *Client) Get(ctx context.Context, key string) (*models.Document, error) {
	resp, err := c.get.CallUnary(ctx, connect.NewRequest(wrapperspb.String(key)))
	if err != nil {
		return nil, remoteError("get "+key, err)
	}
	doc, err := DecodeDocument(resp.Msg)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", models.ErrRemoteUnavailable, key, err)
	}
	return &doc, nil
}

func (c *Client) Put(ctx context.Context, key string, value map[string]any) error {
	msg, err := EncodePut(key, value)
	if err != nil {
		return err
	}
	if _, err := c.put.CallUnary(ctx, connect.NewRequest(msg)); err != nil {
		return remoteError("put "+key, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.delete.CallUnary(ctx, connect.NewRequest(wrapperspb.String(key))); err != nil {
		return remoteError("delete "+key, err)
	}
	return nil
}

// Watch opens a server stream and delivers each snapshot from a reader
// goroutine. The stream ends when stop is called or ctx is done.
func (c *Client) Watch(ctx context.Context, prefix string, onChange func([]models.Document), onError func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.watch.CallServerStream(ctx, connect.NewRequest(wrapperspb.String(prefix)))
	if err != nil {
		cancel()
		return nil, remoteError("watch "+prefix, err)
	}

	var once sync.Once
	stop := func() { once.Do(cancel) }

	go func() {
		defer stream.Close()
		for stream.Receive() {
			docs, err := DecodeSnapshot(stream.Msg())
			if err != nil {
				onError(fmt.Errorf("%w: watch %s: %v", models.ErrRemoteUnavailable, prefix, err))
				continue
			}
			SortByDateDesc(docs)
			onChange(docs)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			onError(remoteError("watch "+prefix, err))
		}
	}()

	return stop, nil
}

// remoteError maps a Connect error onto the model sentinels.
func remoteError(op string, err error) error {
	if connect.CodeOf(err) == connect.CodeNotFound {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrRemoteUnavailable, op, err)
}
