package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"portal/internal"
	"portal/internal/assignments"
	"portal/internal/config"
	"portal/internal/connectors"
	gmailconnector "portal/internal/connectors/gmail"
	imapconnector "portal/internal/connectors/imap"
	"portal/internal/listener"
	"portal/internal/logging"
	"portal/internal/mailimport"
	"portal/internal/portalapi"
	"portal/internal/server"
	"portal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	importer := assignments.NewImporter(db, assignments.WithLogger(logger), assignments.WithTechCard(cfg.TechCardRef()))

	cmd := os.Args[1]
	switch cmd {
	case "assignments:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "xlsx file with shift assignments")
		uploadedBy := fs.String("uploaded-by", "", "user recorded as the uploader")
		target := fs.String("target", "local", "local|api")
		report := fs.String("report", "", "optional xlsx report path")
		dryRun := fs.Bool("dry-run", false, "validate and resolve rows without creating assignments")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" || strings.TrimSpace(*uploadedBy) == "" {
			must(fmt.Errorf("--file and --uploaded-by are required"))
		}

		store, err := makeStore(cfg, db, *target)
		must(err)
		im := assignments.NewImporter(store, assignments.WithLogger(logger), assignments.WithTechCard(cfg.TechCardRef()))

		if *dryRun {
			wb, err := assignments.OpenWorkbook(*file)
			must(err)
			defer wb.Close()
			preview, err := im.Preview(ctx, wb)
			must(err)
			printJSON(preview)
			return
		}

		out, err := im.ImportFile(ctx, *file, *uploadedBy)
		run := internal.ImportRun{ID: uuid.NewString(), Source: "cli:" + *target, FileName: *file, UploadedBy: *uploadedBy}
		if err != nil {
			run.Error = err.Error()
			if recErr := db.InsertImportRun(run); recErr != nil {
				logger.Error("failed to record import run", zap.Error(recErr))
			}
			must(err)
		}
		run.Succeeded, run.Failed, run.Skipped = out.Counts()
		if blob, err := json.Marshal(out); err == nil {
			run.ReportJSON = string(blob)
		}
		must(db.InsertImportRun(run))
		if *report != "" {
			must(assignments.WriteReport(out, *report))
		}
		printJSON(out)
		fmt.Fprintf(os.Stderr, "import done run=%s success=%d errors=%d skipped=%d\n", run.ID, run.Succeeded, run.Failed, run.Skipped)
	case "assignments:template":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "shift-assignments.xlsx", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		f, err := os.Create(*out)
		must(err)
		must(assignments.WriteTemplate(f))
		must(f.Close())
		fmt.Printf("template written to %s\n", *out)
	case "assignments:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		date := fs.String("date", "", "shift date YYYY-MM-DD")
		status := fs.String("status", "", "assigned|in_progress|completed|cancelled")
		limit := fs.Int("limit", 100, "max rows")
		_ = fs.Parse(os.Args[2:])
		list, err := db.ListAssignments(internal.AssignmentFilter{
			ShiftDate: *date,
			Status:    internal.AssignmentStatus(*status),
			Limit:     *limit,
		})
		must(err)
		for _, a := range list {
			fmt.Printf("%d\t%s\t%s\toperator=%d\tmachine=%s\t%s\t%s\n", a.ID, a.ShiftDate, a.ShiftType, a.OperatorID, a.MachineNumber, a.Status, a.TaskDescription)
		}
	case "users:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		username := fs.String("username", "", "operator login")
		fullName := fs.String("full-name", "", "display name")
		role := fs.String("role", "operator", "role")
		department := fs.String("department", "", "department")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*username) == "" {
			must(fmt.Errorf("--username is required"))
		}
		must(db.UpsertUsers([]internal.User{{Username: *username, FullName: *fullName, Role: *role, Department: *department}}))
		fmt.Printf("user %s saved\n", *username)
	case "users:sync":
		svc := portalapi.NewSyncService(db, portalapi.NewClient(cfg))
		count, err := svc.SyncUsers(ctx)
		must(err)
		fmt.Printf("user sync complete: %d users\n", count)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		reports := fs.String("reports", "", "directory for per-attachment xlsx reports")
		_ = fs.Parse(os.Args[2:])
		processor := mailimport.NewProcessingService(db, importer, logger)
		if *reports != "" {
			processor.WithReports(*reports)
		}
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d status=%s success=%d errors=%d skipped=%d\n", res.EmailID, res.Status, res.Succeeded, res.Failed, res.Skipped)
			return
		}
		total, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d assignments=%d rowErrors=%d\n", total.Emails, total.Succeeded, total.Failed)
	case "mail:listen":
		processor := mailimport.NewProcessingService(db, importer, logger)
		must(listener.NewService(db, processor, cfg, logger).Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		if len(cfg.APITokens) == 0 {
			logger.Warn("API_TOKENS is empty, every authenticated route will answer 401")
		}
		must(server.New(importer, db, cfg.APITokens, logger).Run(ctx, *addr))
	default:
		usage()
		os.Exit(1)
	}
}

func makeStore(cfg config.Config, db *storage.DB, target string) (assignments.Store, error) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "local":
		return db, nil
	case "api":
		if err := cfg.Require("PORTAL_API_TOKEN", cfg.PortalAPIToken); err != nil {
			return nil, err
		}
		return portalapi.NewClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported target: %s", target)
	}
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case gmailconnector.Provider:
		return gmailconnector.NewConnector(ctx, cfg)
	case imapconnector.Provider:
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: portal <command>")
	fmt.Println("commands:")
	fmt.Println("  assignments:import --file=shifts.xlsx --uploaded-by=planner [--target=local|api] [--report=out.xlsx] [--dry-run]")
	fmt.Println("  assignments:template [--out=shift-assignments.xlsx]")
	fmt.Println("  assignments:list [--date=2024-01-10] [--status=assigned] [--limit=100]")
	fmt.Println("  users:add --username=op1 [--full-name=...] [--role=operator] [--department=...]")
	fmt.Println("  users:sync")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20] [--reports=dir]")
	fmt.Println("  mail:listen")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
