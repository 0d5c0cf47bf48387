package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "coursebook.v1.BookingService"

// BookingServiceHandler is implemented by BookingServiceServer.
type BookingServiceHandler interface {
	Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error)
	ConfirmPayment(context.Context, *ConfirmPaymentRequest) (*ConfirmPaymentResponse, error)
	GetAvailability(context.Context, *AvailabilityRequest) (*AvailabilityResponse, error)
	CancelBooking(context.Context, *CancelBookingRequest) (*CancelBookingResponse, error)
	TransferBooking(context.Context, *TransferBookingRequest) (*TransferBookingResponse, error)
	CheckPass(context.Context, *CheckPassRequest) (*CheckPassResponse, error)
	UseSession(context.Context, *SessionRequest) (*SessionResponse, error)
	RefundSession(context.Context, *SessionRequest) (*SessionResponse, error)
}

func unaryHandler[Request any, Response any](methodName string, call func(BookingServiceHandler, context.Context, *Request) (*Response, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + methodName
	return grpc.MethodDesc{
		MethodName: methodName,
		Handler: func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(Request)
			if err := decode(request); err != nil {
				return nil, err
			}
			handler := server.(BookingServiceHandler)
			if interceptor == nil {
				return call(handler, ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod}
			return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
				return call(handler, ctx, request.(*Request))
			})
		},
	}
}

// BookingServiceDesc describes the booking service for grpc.Server.RegisterService.
var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceHandler)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Reserve", BookingServiceHandler.Reserve),
		unaryHandler("ConfirmPayment", BookingServiceHandler.ConfirmPayment),
		unaryHandler("GetAvailability", BookingServiceHandler.GetAvailability),
		unaryHandler("CancelBooking", BookingServiceHandler.CancelBooking),
		unaryHandler("TransferBooking", BookingServiceHandler.TransferBooking),
		unaryHandler("CheckPass", BookingServiceHandler.CheckPass),
		unaryHandler("UseSession", BookingServiceHandler.UseSession),
		unaryHandler("RefundSession", BookingServiceHandler.RefundSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "coursebook/v1/booking.json",
}

// Register attaches the booking service to server.
func Register(server grpc.ServiceRegistrar, handler BookingServiceHandler) {
	server.RegisterService(&BookingServiceDesc, handler)
}

// BookingServiceClient calls the booking service with the JSON codec.
type BookingServiceClient struct {
	connection grpc.ClientConnInterface
}

// NewBookingServiceClient wraps an established client connection.
func NewBookingServiceClient(connection grpc.ClientConnInterface) *BookingServiceClient {
	return &BookingServiceClient{connection: connection}
}

func invoke[Request any, Response any](ctx context.Context, client *BookingServiceClient, methodName string, request *Request, options []grpc.CallOption) (*Response, error) {
	response := new(Response)
	callOptions := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, options...)
	if err := client.connection.Invoke(ctx, "/"+ServiceName+"/"+methodName, request, response, callOptions...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *BookingServiceClient) Reserve(ctx context.Context, request *ReserveRequest, options ...grpc.CallOption) (*ReserveResponse, error) {
	return invoke[ReserveRequest, ReserveResponse](ctx, client, "Reserve", request, options)
}

func (client *BookingServiceClient) ConfirmPayment(ctx context.Context, request *ConfirmPaymentRequest, options ...grpc.CallOption) (*ConfirmPaymentResponse, error) {
	return invoke[ConfirmPaymentRequest, ConfirmPaymentResponse](ctx, client, "ConfirmPayment", request, options)
}

func (client *BookingServiceClient) GetAvailability(ctx context.Context, request *AvailabilityRequest, options ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityRequest, AvailabilityResponse](ctx, client, "GetAvailability", request, options)
}

func (client *BookingServiceClient) CancelBooking(ctx context.Context, request *CancelBookingRequest, options ...grpc.CallOption) (*CancelBookingResponse, error) {
	return invoke[CancelBookingRequest, CancelBookingResponse](ctx, client, "CancelBooking", request, options)
}

func (client *BookingServiceClient) TransferBooking(ctx context.Context, request *TransferBookingRequest, options ...grpc.CallOption) (*TransferBookingResponse, error) {
	return invoke[TransferBookingRequest, TransferBookingResponse](ctx, client, "TransferBooking", request, options)
}

func (client *BookingServiceClient) CheckPass(ctx context.Context, request *CheckPassRequest, options ...grpc.CallOption) (*CheckPassResponse, error) {
	return invoke[CheckPassRequest, CheckPassResponse](ctx, client, "CheckPass", request, options)
}

func (client *BookingServiceClient) UseSession(ctx context.Context, request *SessionRequest, options ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionRequest, SessionResponse](ctx, client, "UseSession", request, options)
}

func (client *BookingServiceClient) RefundSession(ctx context.Context, request *SessionRequest, options ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionRequest, SessionResponse](ctx, client, "RefundSession", request, options)
}
