package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/spf13/cobra"
)

const (
	flagEmail           = "email"
	flagFirstName       = "first-name"
	flagLastName        = "last-name"
	flagPassType        = "type"
	flagSubscriptionRef = "subscription-ref"
	flagPaymentRef      = "payment-ref"
	flagPassID          = "pass"
	flagCourseID        = "course"
	flagBookingID       = "booking"
	flagReason          = "reason"
)

func withApplication(cmd *cobra.Command, cfg *runtimeConfig, run func(ctx context.Context, app *application) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()
	app, err := openApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}

func newSyncCalendarCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-calendar",
		Short: "Upsert courses from the Google Calendar once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.GoogleCalendarID == "" {
				return fmt.Errorf("%s is required", flagGoogleCalendarID)
			}
			return withApplication(cmd, cfg, func(ctx context.Context, app *application) error {
				syncer, err := app.newCalendarSyncer(ctx, cfg)
				if err != nil {
					return err
				}
				result, err := syncer.Sync(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced=%d cancelled=%d skipped=%d failed=%d\n", result.Synced, result.Cancelled, result.Skipped, result.Failed)
				return nil
			})
		},
	}
}

func newGrantPassCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant-pass",
		Short: "Create a pass for a customer outside the payment flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := booking.NewEmail(flagValue(cmd, flagEmail))
			if err != nil {
				return err
			}
			passType, err := booking.ParsePassType(flagValue(cmd, flagPassType))
			if err != nil {
				return err
			}
			request := booking.CreatePassRequest{
				Customer: booking.Customer{
					Email:     email,
					FirstName: flagValue(cmd, flagFirstName),
					LastName:  flagValue(cmd, flagLastName),
				},
				Type:                          passType,
				ExternalPaymentReference:      flagValue(cmd, flagPaymentRef),
				ExternalSubscriptionReference: flagValue(cmd, flagSubscriptionRef),
			}
			return withApplication(cmd, cfg, func(ctx context.Context, app *application) error {
				pass, err := app.service.CreatePass(ctx, request)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pass %s granted to %s: type=%s sessions=%s expires=%s\n",
					pass.ID, pass.Customer.Email, pass.Type, formatSessions(pass.IsUnlimited(), pass.SessionsRemaining), pass.ExpiryDate.Format("2006-01-02"))
				return nil
			})
		},
	}
	cmd.Flags().String(flagEmail, "", "customer email (required)")
	cmd.Flags().String(flagPassType, "", "pass type: fixed_count or unlimited (required)")
	cmd.Flags().String(flagFirstName, "", "customer first name")
	cmd.Flags().String(flagLastName, "", "customer last name")
	cmd.Flags().String(flagPaymentRef, "", "external payment reference")
	cmd.Flags().String(flagSubscriptionRef, "", "external subscription reference of a recurring pass")
	_ = cmd.MarkFlagRequired(flagEmail)
	_ = cmd.MarkFlagRequired(flagPassType)
	return cmd
}

func newRefundSessionCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund-session",
		Short: "Give back a session consumed for a course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			passID := flagValue(cmd, flagPassID)
			courseID := flagValue(cmd, flagCourseID)
			return withApplication(cmd, cfg, func(ctx context.Context, app *application) error {
				usage, err := app.service.RefundSession(ctx, passID, courseID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pass %s refunded for %s: sessions=%s\n", usage.PassID, courseID, formatSessions(usage.Unlimited, usage.SessionsRemaining))
				return nil
			})
		},
	}
	cmd.Flags().String(flagPassID, "", "pass id (required)")
	cmd.Flags().String(flagCourseID, "", "course id the session was used for (required)")
	_ = cmd.MarkFlagRequired(flagPassID)
	_ = cmd.MarkFlagRequired(flagCourseID)
	return cmd
}

func newCancelBookingCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel-booking",
		Short: "Cancel a booking and promote the next waitlisted customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID := flagValue(cmd, flagBookingID)
			reason := flagValue(cmd, flagReason)
			return withApplication(cmd, cfg, func(ctx context.Context, app *application) error {
				result, err := app.service.CancelBooking(ctx, bookingID, reason)
				if err != nil {
					return err
				}
				promoted := result.PromotedEntryID
				if promoted == "" {
					promoted = "none"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "booking %s cancelled on %s: promoted=%s\n", result.BookingID, result.CourseID, promoted)
				return nil
			})
		},
	}
	cmd.Flags().String(flagBookingID, "", "booking id (required)")
	cmd.Flags().String(flagReason, booking.CancellationReasonAdmin, "cancellation reason")
	_ = cmd.MarkFlagRequired(flagBookingID)
	return cmd
}

func flagValue(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return strings.TrimSpace(value)
}

func formatSessions(unlimited bool, remaining int) string {
	if unlimited {
		return "unlimited"
	}
	return strconv.Itoa(remaining)
}
