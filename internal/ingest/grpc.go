package ingest

/*
Файл grpc.go — gRPC вход для процессов распознавания.

Сервис attendance.v1.Ingest описан вручную через grpc.ServiceDesc: сообщения —
google.protobuf.Struct, поэтому кодогенерация не нужна, а клиенту на любом
языке достаточно well-known types. Метаданные: authorization (Bearer JWT
с ролью camera или admin), x-trace-id (опционально).
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/engine"
	"github.com/xela07ax/attendance-engine/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	IngestServiceName = "attendance.v1.Ingest"
	submitMethod      = "/" + IngestServiceName + "/Submit"
)

// IngestServer — серверная сторона attendance.v1.Ingest
type IngestServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ingestServiceDesc = grpc.ServiceDesc{
	ServiceName: IngestServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "attendance/v1/ingest.proto",
}

func submitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCIngest отдает события ядру. Тот же пайплайн, что и для HTTP и Kafka.
type GRPCIngest struct {
	sub     Submitter
	metrics *engine.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewGRPCIngest(sub Submitter, metrics *engine.Metrics, logger *zap.Logger) *GRPCIngest {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &GRPCIngest{
		sub:     sub,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "grpc-ingest")),
		now:     time.Now,
	}
}

func (g *GRPCIngest) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	// 1. Struct -> JSON -> событие (тот же декодер, что у Kafka)
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad payload: %v", err)
	}
	ev, err := DecodeEvent(raw, g.now())
	if err != nil {
		g.metrics.IngestMessages.WithLabelValues("grpc", "decode_error").Inc()
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// 2. Единый пайплайн обработки
	out, err := g.sub.Submit(engine.WithTransport(ctx, "grpc"), ev)
	if err != nil {
		g.metrics.IngestMessages.WithLabelValues("grpc", "error").Inc()
		return nil, toStatus(err)
	}
	g.metrics.IngestMessages.WithLabelValues("grpc", "ok").Inc()

	// 3. Собираем ответ обратно в Protobuf
	resp := map[string]interface{}{"status": string(out.Status)}
	if out.Entry != nil {
		resp["id"] = out.Entry.ID
		resp["date"] = out.Entry.Date
		resp["time"] = out.Entry.Time
	}
	result, err := structpb.NewStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return result, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownPerson):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// NewGRPCServer собирает сервер: проверка JWT, Ingest и стандартный health
func NewGRPCServer(ingest IngestServer, v auth.TokenValidator, logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		TraceInterceptor(),
		UnaryAuthInterceptor(v, logger, domain.RoleCamera, domain.RoleAdmin),
	))
	srv.RegisterService(&ingestServiceDesc, ingest)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(IngestServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

// TraceInterceptor переносит x-trace-id из метаданных в контекст
func TraceInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		traceID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-trace-id"); len(ids) > 0 {
				traceID = ids[0]
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		return handler(engine.WithTraceID(ctx, traceID), req)
	}
}

// UnaryAuthInterceptor проверяет JWT в метаданных gRPC вызова.
// Health-проверки проходят без токена.
func UnaryAuthInterceptor(v auth.TokenValidator, logger *zap.Logger, roles ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		// 1. Извлекаем метаданные из контекста
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		// 2. Ищем токен (в gRPC заголовки в нижнем регистре)
		tokens := md.Get("authorization")
		if len(tokens) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing access token")
		}

		claims, err := v.VerifyToken(tokens[0])
		if err != nil {
			logger.Warn("grpc auth failure", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if !auth.HasRole(claims, roles...) {
			return nil, status.Errorf(codes.PermissionDenied, "role %q is not allowed", claims.Role)
		}

		return handler(auth.WithClaims(ctx, claims), req)
	}
}

// Client — клиент attendance.v1.Ingest (CLI, интеграционные тесты)
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

// Submit отправляет событие и возвращает статус обработки
func (c *Client) Submit(ctx context.Context, ev domain.RecognitionEvent) (domain.SubmitStatus, error) {
	payload := map[string]interface{}{
		"person_id":   ev.PersonID,
		"detected_at": ev.DetectedAt.Format(time.RFC3339Nano),
		"confidence":  ev.Confidence,
	}
	if ev.PersonName != "" {
		payload["person_name"] = ev.PersonName
	}
	in, err := structpb.NewStruct(payload)
	if err != nil {
		return "", fmt.Errorf("failed to create proto struct: %w", err)
	}

	// Защитный таймаут на уровне вызова
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, submitMethod, in, out); err != nil {
		return "", fmt.Errorf("ingest call failed: %w", err)
	}
	st, _ := out.AsMap()["status"].(string)
	return domain.SubmitStatus(st), nil
}
