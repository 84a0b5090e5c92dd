package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/core/service"
	"github.com/rl1809/wip-inventory/internal/logging"
)

const InventoryServiceName = "wip.inventory.v1.InventoryService"

// InventoryServer is the gRPC surface. Payloads are google.protobuf.Struct
// values carrying the same JSON fields as the HTTP API.
type InventoryServer interface {
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveStock(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Search", InventoryServer.Search),
		unaryMethod("Validate", InventoryServer.Validate),
		unaryMethod("Transfer", InventoryServer.Transfer),
		unaryMethod("AddStock", InventoryServer.AddStock),
		unaryMethod("RemoveStock", InventoryServer.RemoveStock),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wip/inventory/v1/inventory.proto",
}

func unaryMethod(name string, call func(InventoryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InventoryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + InventoryServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(InventoryServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

// Invoke calls method ("Transfer", "Search", ...) on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+InventoryServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ InventoryServer = (*GRPCHandler)(nil)

type GRPCHandler struct {
	svc    Services
	logger *zap.Logger
}

func NewGRPCHandler(svc Services, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, logger: logger}
}

func (h *GRPCHandler) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		PartID    string `json:"part_id"`
		Operation string `json:"operation"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	recs, err := h.svc.Query.Search(ctx, req.PartID, req.Operation)
	if err != nil {
		logging.L(ctx, h.logger).Error("search inventory", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "inventory storage is unavailable")
	}
	return toStruct(map[string]any{"records": toRecords(recs)})
}

func (h *GRPCHandler) Validate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.TransferRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return toStruct(toValidation(h.svc.Transfers.Validate(ctx, req)))
}

func (h *GRPCHandler) Transfer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.TransferRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	result, err := h.svc.Transfers.ExecuteTransfer(ctx, req)
	if err != nil {
		return nil, h.statusError(ctx, err)
	}
	return toStruct(toTransfer(result))
}

func (h *GRPCHandler) AddStock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.StockRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	tx, err := h.svc.Transfers.AddStock(ctx, req)
	if err != nil {
		return nil, h.statusError(ctx, err)
	}
	return toStruct(toTransaction(tx))
}

func (h *GRPCHandler) RemoveStock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req domain.StockRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	tx, err := h.svc.Transfers.RemoveStock(ctx, req)
	if err != nil {
		return nil, h.statusError(ctx, err)
	}
	return toStruct(toTransaction(tx))
}

func (h *GRPCHandler) statusError(ctx context.Context, err error) error {
	var te *domain.TransferError
	switch {
	case errors.As(err, &te):
		switch te.Kind {
		case domain.KindValidationFailed:
			return status.Error(codes.InvalidArgument, strings.Join(te.Errors, " "))
		case domain.KindInsufficientQuantity:
			return status.Error(codes.FailedPrecondition, te.Message)
		case domain.KindPersistenceFailure:
			logging.L(ctx, h.logger).Error("ledger mutation failed", zap.Error(err))
			return status.Error(codes.Unavailable, te.Message)
		}
	case errors.Is(err, service.ErrAborted):
		return status.Error(codes.Canceled, "request cancelled before any change was made")
	}
	logging.L(ctx, h.logger).Error("unexpected engine error", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func fromStruct(in *structpb.Struct, dst any) error {
	body, err := in.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid payload")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("invalid payload: %v", err))
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(body); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}
