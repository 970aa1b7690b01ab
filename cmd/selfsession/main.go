// Command selfsession runs a scripted session lifecycle against the consent
// kernel and prints the resulting audit trail. It exists to exercise the full
// stack end to end: request, consent, execution, a checkpoint with a typed
// confirmation, completion, and export.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/selfsession/selfsession/pkg/boundary"
	"github.com/selfsession/selfsession/pkg/capability"
	"github.com/selfsession/selfsession/pkg/config"
	"github.com/selfsession/selfsession/pkg/confirmation"
	"github.com/selfsession/selfsession/pkg/identity"
	"github.com/selfsession/selfsession/pkg/observability"
	"github.com/selfsession/selfsession/pkg/runtime"
	"github.com/selfsession/selfsession/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "selfsession:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	registry := capability.NewRegistry("read_file", "edit_file", "run_tests")
	if cfg.PolicyPath != "" {
		policy, err := capability.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return err
		}
		registry = policy.Registry()
	}

	sess := runtime.New(runtime.Options{
		Logger:          logger,
		Metrics:         metrics,
		AuthorityTTL:    cfg.AuthorityTTL,
		SessionTTL:      cfg.SessionTTL,
		SilenceTimeout:  cfg.SilenceTimeout,
		ConfirmationTTL: cfg.ConfirmationTTL,
		Registry:        registry,
		Scope:           boundary.Context{Tool: "editor", Modality: "text"},
	})

	auditStore, err := store.Open(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer auditStore.Close()
	sess.AuditLog().OnAppend(auditStore.Handler(sess.ID(), logger))

	ctx := context.Background()
	scope := boundary.Context{Tool: "editor", Modality: "text"}

	if err := sess.Request("agent proposes an autonomous editing session"); err != nil {
		return err
	}
	if err := sess.GrantConsent("user confirmed session start"); err != nil {
		return err
	}
	if err := sess.BeginExecution("task accepted"); err != nil {
		return err
	}

	if cfg.JWTSecret != "" {
		exporter, err := identity.NewExporter([]byte(cfg.JWTSecret))
		if err != nil {
			return err
		}
		tokens := sess.Authority().SessionTokens(sess.ID())
		if len(tokens) > 0 {
			jwt, err := exporter.Export(tokens[0])
			if err != nil {
				return err
			}
			logger.Info("authority token exported", "jwt", jwt)
		}
	}

	for _, capID := range []string{"read_file", "edit_file"} {
		if err := sess.ExecuteStep(ctx, capID, scope, nil); err != nil {
			return err
		}
	}
	sess.RecordMutation("draft.txt", "applied edit from plan step 2")

	token, err := sess.TriggerCheckpoint("proactive checkpoint after risky edit", confirmation.TypeCode)
	if err != nil {
		return err
	}
	fmt.Println(token.ChallengePayload)

	// The demo answers its own challenge by extracting the code from the
	// payload; a real host relays it to the user.
	code := token.ChallengePayload[strings.LastIndex(token.ChallengePayload, " ")+1:]
	ok, err := sess.Resume(code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checkpoint confirmation rejected")
	}

	if err := sess.ExecuteStep(ctx, "run_tests", scope, nil); err != nil {
		return err
	}
	if err := sess.Complete("task finished"); err != nil {
		return err
	}

	if err := sess.AuditLog().VerifyChain(); err != nil {
		return err
	}
	out, err := sess.AuditLog().ExportJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
