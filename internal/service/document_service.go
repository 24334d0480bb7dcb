// Package service implements the Connect handlers of the document server.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mmynk/gasbottle/internal/docstore"
	"github.com/mmynk/gasbottle/internal/middleware"
	"github.com/mmynk/gasbottle/internal/models"
	"github.com/mmynk/gasbottle/internal/storage"
)

// DocumentService implements the document service: Get, Put, Delete and
// a server-streaming Watch. Callers only reach keys in their own partition.
type DocumentService struct {
	store storage.DocumentBackend
	hub   *docstore.Hub
}

// NewDocumentService creates a new DocumentService with the given storage backend.
func NewDocumentService(store storage.DocumentBackend) *DocumentService {
	return &DocumentService{store: store, hub: docstore.NewHub()}
}

// NewDocumentServiceHandler builds an HTTP handler serving every procedure
// of svc. It returns the path prefix to mount the handler on.
func NewDocumentServiceHandler(svc *DocumentService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(docstore.GetProcedure, connect.NewUnaryHandler(docstore.GetProcedure, svc.Get, opts...))
	mux.Handle(docstore.PutProcedure, connect.NewUnaryHandler(docstore.PutProcedure, svc.Put, opts...))
	mux.Handle(docstore.DeleteProcedure, connect.NewUnaryHandler(docstore.DeleteProcedure, svc.Delete, opts...))
	mux.Handle(docstore.WatchProcedure, connect.NewServerStreamHandler(docstore.WatchProcedure, svc.Watch, opts...))
	return "/" + docstore.ServiceName + "/", mux
}

// Get retrieves a document by key.
func (s *DocumentService) Get(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	key := req.Msg.GetValue()
	if err := authorize(ctx, key); err != nil {
		return nil, err
	}

	doc, err := s.store.GetDocument(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		slog.Error("Get failed", "key", key, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	msg, err := docstore.EncodeDocument(*doc)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Put creates or replaces a document and wakes the watchers of its key.
func (s *DocumentService) Put(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	key, value, err := docstore.DecodePut(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := authorize(ctx, key); err != nil {
		return nil, err
	}

	if err := s.store.PutDocument(ctx, key, value); err != nil {
		slog.Error("Put failed", "key", key, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s.hub.Publish(key)

	slog.Debug("Document written", "key", key)
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Delete removes a document and wakes the watchers of its key.
func (s *DocumentService) Delete(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	key := req.Msg.GetValue()
	if err := authorize(ctx, key); err != nil {
		return nil, err
	}

	if err := s.store.DeleteDocument(ctx, key); err != nil {
		slog.Error("Delete failed", "key", key, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	s.hub.Publish(key)

	slog.Debug("Document deleted", "key", key)
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Watch streams the full set of documents under a prefix: once when the
// stream opens and again after every write below the prefix. Watching the
// user root streams the documents below it.
func (s *DocumentService) Watch(ctx context.Context, req *connect.Request[wrapperspb.StringValue], stream *connect.ServerStream[structpb.Struct]) error {
	prefix := req.Msg.GetValue()
	if err := authorize(ctx, prefix); err != nil {
		return err
	}
	// Listing and hub matching are raw prefix matches, so a bare user root
	// would also match sibling partitions such as users/u10.
	if root := models.UserKey(middleware.GetUserID(ctx)); prefix == root {
		prefix = root + "/"
	}

	signals, cancel := s.hub.Subscribe(prefix)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signals:
			docs, err := s.store.ListDocuments(ctx, prefix)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("Watch list failed", "prefix", prefix, "error", err)
				return connect.NewError(connect.CodeInternal, err)
			}
			msg, err := docstore.EncodeSnapshot(docs)
			if err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Watchers returns the number of open Watch streams.
func (s *DocumentService) Watchers() int {
	return s.hub.Len()
}

func authorize(ctx context.Context, key string) error {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("no user in request"))
	}
	if key == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("empty key"))
	}
	if !models.KeyInPartition(key, userID) {
		return connect.NewError(connect.CodePermissionDenied, errors.New("key outside caller partition"))
	}
	return nil
}
