// admin is the operator's command line for the booking lifecycle. It runs
// the same lifecycle controller as the API, pointed at a remote deployment.
//
//	admin token --subject ops@example.com
//	admin show bk-123
//	admin advance bk-123 [--to IN_TRANSIT] [--note ...] [--final-price 210.50]
//	admin cancel bk-123 --reason "customer changed plans"
//	admin assign bk-123 --pilot pl-7
//	admin candidates
//	admin watch bk-123
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/Domenick1991/courierbooking/config"
	"github.com/Domenick1991/courierbooking/internal/adminclient"
	"github.com/Domenick1991/courierbooking/internal/auth"
	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/Domenick1991/courierbooking/internal/realtime"
	"github.com/Domenick1991/courierbooking/internal/service/booking"
	"github.com/Domenick1991/courierbooking/internal/service/pilots"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server     string
	token      string
	configPath string
	timeout    time.Duration

	subject    string
	to         string
	note       string
	finalPrice string
	reason     string
	pilot      string
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("admin", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", envOr("COURIER_SERVER", "http://localhost:8080"), "API base URL")
	flagSet.StringVar(&opts.token, "token", os.Getenv("COURIER_TOKEN"), "admin bearer token")
	flagSet.StringVar(&opts.configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "config used by the token command")
	flagSet.DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-request timeout")
	flagSet.StringVar(&opts.subject, "subject", "", "operator name for a new token")
	flagSet.StringVar(&opts.to, "to", "", "target status (default: next in order)")
	flagSet.StringVar(&opts.note, "note", "", "note stored with the change")
	flagSet.StringVar(&opts.finalPrice, "final-price", "", "final price, only when delivering")
	flagSet.StringVar(&opts.reason, "reason", "", "cancellation reason")
	flagSet.StringVar(&opts.pilot, "pilot", "", "pilot id to assign")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		return fmt.Errorf("missing command; see --help")
	}

	command, rest := rest[0], rest[1:]
	if command == "token" {
		return mintToken(opts, out)
	}

	session := &adminclient.Session{Token: opts.token}
	client := adminclient.NewClient(opts.server, session)
	pilotService := pilots.NewPilotService(client, nil)
	svc := booking.NewBookingService(client, pilotService, nil, nil, "", booking.WithRequestTimeout(opts.timeout))

	if command == "candidates" {
		list, err := svc.ListCandidates(ctx)
		if err != nil {
			return err
		}
		for _, p := range list {
			fmt.Fprintf(out, "%s\t%s\t%.1f\t%d deliveries\n", p.ID, p.Name, p.Rating, p.DeliveryCount)
		}
		return nil
	}

	if len(rest) != 1 {
		return fmt.Errorf("%s takes exactly one booking id", command)
	}
	id := rest[0]

	switch command {
	case "watch":
		return watch(ctx, client, svc, id, out)
	case "show", "advance", "cancel", "assign":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	current, err := svc.Refresh(ctx, id)
	if err != nil {
		return err
	}

	var updated *domain.Booking
	switch command {
	case "show":
		return show(out, svc, current)
	case "advance":
		input, err := advanceInput(svc, current, opts)
		if err != nil {
			return err
		}
		updated, err = svc.Advance(ctx, current, input)
		if err != nil {
			return explain(err)
		}
	case "cancel":
		updated, err = svc.Cancel(ctx, current, opts.reason)
		if err != nil {
			return explain(err)
		}
	case "assign":
		updated, err = svc.AssignPilot(ctx, current, opts.pilot)
		if err != nil {
			return explain(err)
		}
	}
	return show(out, svc, updated)
}

func mintToken(opts options, out io.Writer) error {
	if opts.subject == "" {
		return fmt.Errorf("--subject is required")
	}
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	token, expires, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL()).Issue(opts.subject)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n# expires %s\n", token, expires.Format(time.RFC3339))
	return nil
}

func advanceInput(svc *booking.BookingService, current *domain.Booking, opts options) (booking.AdvanceInput, error) {
	input := booking.AdvanceInput{Note: opts.note}
	if opts.to != "" {
		target, err := domain.ParseStatus(opts.to)
		if err != nil {
			return input, err
		}
		input.Target = target
	} else {
		actions, err := svc.Actions(current)
		if err != nil {
			return input, err
		}
		if actions.DefaultNext == nil {
			return input, fmt.Errorf("%w: booking is %s", domain.ErrIllegalTransition, actions.Label)
		}
		input.Target = *actions.DefaultNext
	}
	if opts.finalPrice != "" {
		price, err := decimal.NewFromString(opts.finalPrice)
		if err != nil {
			return input, fmt.Errorf("invalid --final-price: %w", err)
		}
		input.FinalPrice = &price
	}
	return input, nil
}

func show(out io.Writer, svc *booking.BookingService, b *domain.Booking) error {
	fmt.Fprintf(out, "booking   %s\n", b.ID)
	actions, err := svc.Actions(b)
	if err != nil {
		fmt.Fprintf(out, "status    %s (unrecognized status)\n", b.Status)
		return nil
	}
	fmt.Fprintf(out, "status    %s\n", actions.Label)
	fmt.Fprintf(out, "pickup    %s\n", oneLine(b.Pickup))
	fmt.Fprintf(out, "drop      %s\n", oneLine(b.Dropoff))
	if b.PilotID != nil {
		fmt.Fprintf(out, "pilot     %s\n", *b.PilotID)
	}
	fmt.Fprintf(out, "estimate  %s\n", b.EstimatedPrice.StringFixed(2))
	if b.FinalPrice != nil {
		fmt.Fprintf(out, "final     %s\n", b.FinalPrice.StringFixed(2))
	}
	if b.CancelReason != nil {
		fmt.Fprintf(out, "reason    %s\n", *b.CancelReason)
	}
	if actions.DefaultNext != nil {
		next := make([]string, 0, len(actions.ForceTargets)+1)
		for _, s := range append([]domain.Status{*actions.DefaultNext}, actions.ForceTargets...) {
			next = append(next, string(s))
		}
		fmt.Fprintf(out, "next      %s\n", strings.Join(next, ", "))
	}
	fmt.Fprintf(out, "cancel    %t\nassign    %t\n", actions.CanCancel, actions.CanAssignPilot)
	return nil
}

func watch(ctx context.Context, client *adminclient.Client, svc *booking.BookingService, id string, out io.Writer) error {
	current, err := svc.Refresh(ctx, id)
	if err != nil {
		return err
	}
	rt := client.Realtime()
	if err := rt.Subscribe(id); err != nil {
		return err
	}

	for v, err := range realtime.Watch(ctx, rt, realtime.NewView(current)) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		label, lerr := domain.Label(v.Booking.Status)
		if lerr != nil {
			label = string(v.Booking.Status)
		}
		if v.Position != nil {
			fmt.Fprintf(out, "%s  %-18s  %.5f,%.5f\n", v.Position.Timestamp.Format(time.TimeOnly), label, v.Position.Lat, v.Position.Lng)
		} else {
			fmt.Fprintf(out, "%s  %s\n", v.Booking.UpdatedAt.Format(time.TimeOnly), label)
		}
	}
	return nil
}

func explain(err error) error {
	if domain.OutcomeUnknown(err) {
		return fmt.Errorf("%w (the change may or may not have been applied; run show before retrying)", err)
	}
	return err
}

func oneLine(a domain.Address) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State, a.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
