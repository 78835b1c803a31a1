package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "docflow.v1.DocumentApprovals"

// actorMetadataKey is the metadata key carrying the acting employee id.
const actorMetadataKey = "x-actor-id"

// DocumentApprovalsServer is the server API of docflow.v1.DocumentApprovals.
// Every method takes and returns a google.protobuf.Struct shaped like the
// matching HTTP request and response bodies.
type DocumentApprovalsServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordDecision(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resubmit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Archive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unarchive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// GRPCHandler implements DocumentApprovalsServer
type GRPCHandler struct {
	workflow *service.WorkflowService
	logger   zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(workflow *service.WorkflowService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		workflow: workflow,
		logger:   logger.With().Str("handler", "grpc").Logger(),
	}
}

// RegisterDocumentApprovalsServer registers srv on s.
func RegisterDocumentApprovalsServer(s grpc.ServiceRegistrar, srv DocumentApprovalsServer) {
	s.RegisterService(&documentApprovalsServiceDesc, srv)
}

var documentApprovalsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentApprovalsServer)(nil),
	Methods: []grpc.MethodDesc{
		structMethod("Submit", DocumentApprovalsServer.Submit),
		structMethod("RecordDecision", DocumentApprovalsServer.RecordDecision),
		structMethod("Resubmit", DocumentApprovalsServer.Resubmit),
		structMethod("Archive", DocumentApprovalsServer.Archive),
		structMethod("Unarchive", DocumentApprovalsServer.Unarchive),
		structMethod("GetDocument", DocumentApprovalsServer.GetDocument),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docflow/v1/document_approvals.proto",
}

func structMethod(name string, call func(DocumentApprovalsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(DocumentApprovalsServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}

// ── Methods ─────────────────────────────────────────────────────────────────

// Submit creates a document and starts its route
func (h *GRPCHandler) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := actorFrom(ctx, in)
	if err != nil {
		return nil, err
	}
	var req submitDocumentRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	svcReq, err := req.toService(actorID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	res, err := h.workflow.Submit(ctx, svcReq)
	if err != nil {
		h.logger.Warn().Err(err).Str("actor_id", actorID).Msg("Submit failed")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(toResultView(res))
}

// RecordDecision records an approver decision
func (h *GRPCHandler) RecordDecision(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := actorFrom(ctx, in)
	if err != nil {
		return nil, err
	}
	var req decisionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := h.workflow.RecordDecision(ctx, &service.DecisionRequest{
		DocumentID: req.DocumentID,
		ActorID:    actorID,
		Kind:       service.DecisionKind(req.Kind),
		Comment:    req.Comment,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(toResultView(res))
}

// Resubmit opens the next approval cycle
func (h *GRPCHandler) Resubmit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := actorFrom(ctx, in)
	if err != nil {
		return nil, err
	}
	var req routeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := h.workflow.Resubmit(ctx, &service.ResubmitRequest{
		DocumentID:    req.DocumentID,
		ActorID:       actorID,
		ActionType:    repository.ActionType(req.ActionType),
		ApprovalOrder: repository.ApprovalOrder(req.ApprovalOrder),
		ManualRoute:   req.ManualRoute,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(toResultView(res))
}

// Archive archives a finished document
func (h *GRPCHandler) Archive(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.archive(ctx, in, h.workflow.Archive)
}

// Unarchive restores an archived document
func (h *GRPCHandler) Unarchive(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.archive(ctx, in, h.workflow.Unarchive)
}

func (h *GRPCHandler) archive(ctx context.Context, in *structpb.Struct, op func(context.Context, string, string) (*service.Result, error)) (*structpb.Struct, error) {
	actorID, err := actorFrom(ctx, in)
	if err != nil {
		return nil, err
	}
	var req documentRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := op(ctx, req.DocumentID, actorID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(toResultView(res))
}

// GetDocument returns a document with its approvals
func (h *GRPCHandler) GetDocument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req documentRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.DocumentID == "" {
		return nil, status.Error(codes.InvalidArgument, "document_id is required")
	}

	res, err := h.workflow.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(toResultView(res))
}

var _ DocumentApprovalsServer = (*GRPCHandler)(nil)

// ── Helpers ─────────────────────────────────────────────────────────────────

// actorFrom reads the actor from metadata, falling back to an actor_id field.
func actorFrom(ctx context.Context, in *structpb.Struct) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(actorMetadataKey); len(vals) > 0 && vals[0] != "" {
			return vals[0], nil
		}
	}
	if v, ok := in.GetFields()["actor_id"]; ok && v.GetStringValue() != "" {
		return v.GetStringValue(), nil
	}
	return "", status.Error(codes.Unauthenticated, "actor id is required")
}

func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request payload")
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, errMsg)
	default:
		return status.Error(codes.Internal, errMsg)
	}
}
