package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mmynk/gasbottle/internal/auth"
)

const echoProcedure = "/test.v1.EchoService/WhoAmI"

// setupEchoServer serves a unary procedure that returns the caller's user ID.
func setupEchoServer(t *testing.T, metrics *Metrics) *httptest.Server {
	t.Helper()

	jwtManager := auth.NewJWTManager("secret", time.Hour)
	handler := connect.NewUnaryHandler(echoProcedure,
		func(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[wrapperspb.StringValue], error) {
			return connect.NewResponse(wrapperspb.String(GetUserID(ctx))), nil
		},
		connect.WithInterceptors(metrics.Interceptor(), RequireAuth(jwtManager), LoggingInterceptor()),
	)

	mux := http.NewServeMux()
	mux.Handle(echoProcedure, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAuthRoundTrip(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	server := setupEchoServer(t, metrics)

	token, err := auth.NewJWTManager("secret", time.Hour).Generate("user-42")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	client := connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](
		server.Client(), server.URL+echoProcedure,
		connect.WithInterceptors(BearerToken(token)),
	)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("")))
	if err != nil {
		t.Fatalf("CallUnary() error = %v", err)
	}
	if resp.Msg.GetValue() != "user-42" {
		t.Errorf("user = %q, want %q", resp.Msg.GetValue(), "user-42")
	}

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues(echoProcedure, "ok")); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
}

func TestAuthRejects(t *testing.T) {
	wrongToken, _ := auth.NewJWTManager("other", time.Hour).Generate("user-42")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "wrong secret", header: "Bearer " + wrongToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := NewMetrics(prometheus.NewRegistry())
			server := setupEchoServer(t, metrics)
			client := connect.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](
				server.Client(), server.URL+echoProcedure)

			req := connect.NewRequest(wrapperspb.String(""))
			if tt.header != "" {
				req.Header().Set("Authorization", tt.header)
			}
			_, err := client.CallUnary(context.Background(), req)
			if connect.CodeOf(err) != connect.CodeUnauthenticated {
				t.Errorf("code = %v, want Unauthenticated", connect.CodeOf(err))
			}

			label := connect.CodeUnauthenticated.String()
			if got := testutil.ToFloat64(metrics.requests.WithLabelValues(echoProcedure, label)); got != 1 {
				t.Errorf("%s requests = %v, want 1", label, got)
			}
		})
	}
}
