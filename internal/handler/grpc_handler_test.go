package handler

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialGRPC(t *testing.T, env *testEnv) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(zerolog.Nop())))
	RegisterDocumentApprovalsServer(srv, NewGRPCHandler(env.workflow, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, in map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out)
	return out, err
}

func withActor(id string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), actorMetadataKey, id)
}

func TestGRPCHandler_Workflow(t *testing.T) {
	env := newTestEnv(t)
	conn := dialGRPC(t, env)

	out, err := call(withActor(env.author), conn, "Submit", map[string]interface{}{
		"title":            "Invoice",
		"document_type_id": env.docType,
	})
	require.NoError(t, err)
	doc := out.GetFields()["document"].GetStructValue().GetFields()
	docID := doc["id"].GetStringValue()
	assert.Equal(t, "in_review", doc["status"].GetStringValue())
	assert.Equal(t, "2026-03-0001", doc["registration_number"].GetStringValue())

	// The actor may also travel in the payload.
	out, err = call(context.Background(), conn, "RecordDecision", map[string]interface{}{
		"actor_id":    env.approver,
		"document_id": docID,
		"kind":        "approve",
	})
	require.NoError(t, err)
	doc = out.GetFields()["document"].GetStructValue().GetFields()
	assert.Equal(t, "approved", doc["status"].GetStringValue())

	out, err = call(withActor(env.author), conn, "Archive", map[string]interface{}{"document_id": docID})
	require.NoError(t, err)
	assert.True(t, out.GetFields()["document"].GetStructValue().GetFields()["is_archived"].GetBoolValue())

	out, err = call(withActor(env.author), conn, "Unarchive", map[string]interface{}{"document_id": docID})
	require.NoError(t, err)
	assert.False(t, out.GetFields()["document"].GetStructValue().GetFields()["is_archived"].GetBoolValue())

	out, err = call(context.Background(), conn, "GetDocument", map[string]interface{}{"document_id": docID})
	require.NoError(t, err)
	assert.Len(t, out.GetFields()["approvals"].GetListValue().GetValues(), 1)

	_, err = call(withActor(env.author), conn, "Resubmit", map[string]interface{}{"document_id": docID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPCHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	conn := dialGRPC(t, env)

	testCases := []struct {
		name   string
		ctx    context.Context
		method string
		in     map[string]interface{}
		want   codes.Code
	}{
		{name: "no actor", ctx: context.Background(), method: "Submit", in: map[string]interface{}{"title": "x"}, want: codes.Unauthenticated},
		{name: "invalid input", ctx: withActor(env.author), method: "Submit", in: map[string]interface{}{"title": ""}, want: codes.InvalidArgument},
		{name: "unknown document", ctx: context.Background(), method: "GetDocument", in: map[string]interface{}{"document_id": "nope"}, want: codes.NotFound},
		{name: "missing document id", ctx: context.Background(), method: "GetDocument", in: map[string]interface{}{}, want: codes.InvalidArgument},
		{name: "decision on unknown document", ctx: withActor(env.other), method: "RecordDecision", in: map[string]interface{}{"document_id": "nope", "kind": "approve"}, want: codes.NotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := call(tc.ctx, conn, tc.method, tc.in)
			assert.Equal(t, tc.want, status.Code(err))
		})
	}

	res, err := call(withActor(env.author), conn, "Submit", map[string]interface{}{
		"title":            "Invoice",
		"document_type_id": env.docType,
	})
	require.NoError(t, err)
	docID := res.GetFields()["document"].GetStructValue().GetFields()["id"].GetStringValue()

	_, err = call(withActor(env.other), conn, "RecordDecision", map[string]interface{}{"document_id": docID, "kind": "approve"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = call(withActor(env.other), conn, "Archive", map[string]interface{}{"document_id": docID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestMapErrorToGRPC(t *testing.T) {
	assert.Nil(t, mapErrorToGRPC(nil))
	assert.Equal(t, codes.Internal, status.Code(mapErrorToGRPC(context.Canceled)))
}
