package booking

const (
	operationReserve            = "reserve"
	operationConfirmPayment     = "confirm_payment"
	operationCancelBooking      = "cancel_booking"
	operationTransferBooking    = "transfer_booking"
	operationReleasePending     = "release_pending"
	operationPromoteNext        = "promote_next"
	operationRemoveFromWaitlist = "remove_from_waitlist"
	operationCreatePass         = "create_pass"
	operationUseSession         = "use_session"
	operationRefundSession      = "refund_session"
	operationRenewSubscription  = "renew_subscription"
	operationCancelSubscription = "cancel_subscription"
	operationCheckPass          = "check_pass"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultCurrency        = "CHF"
	customerLookupLimit    = 10
	defaultCourseListLimit = 100

	paymentMethodLabelCard = "Card"
	paymentMethodLabelCash = "Cash"
	paymentMethodLabelPass = "Pass"
	paymentStatusPaid      = "paid"
	paymentStatusPending   = "pending"
	paymentStatusOnSite    = "on_site"

	sheetDateLayout      = "2006-01-02"
	sheetTimeLayout      = "15:04"
	sheetTimestampLayout = "2006-01-02T15:04:05Z07:00"
	templateDateLayout   = "Monday, 2 January 2006"
	templateTimeLayout   = "15:04"

	bookingLinkCourseParam = "course"
	bookingLinkEmailParam  = "email"
)

// Cancellation reasons recorded on bookings.
const (
	CancellationReasonCustomer                = "customer_request"
	CancellationReasonTransferred             = "transferred"
	CancellationReasonPaymentInitiationFailed = "payment_initiation_failed"
	CancellationReasonAdmin                   = "admin"
)

// Notification template names.
const (
	TemplateBookingConfirmation      = "booking-confirmation"
	TemplateBookingCashPending       = "booking-cash-pending"
	TemplateWaitlistJoined           = "waitlist-joined"
	TemplateWaitlistSpotAvailable    = "waitlist-spot-available"
	TemplateBookingCancelled         = "booking-cancelled"
	TemplateBookingTransferred       = "booking-transferred"
	TemplatePassPurchaseConfirmation = "pass-purchase-confirmation"
)
