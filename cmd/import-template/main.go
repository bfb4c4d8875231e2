// Command import-template validates a JSON or YAML form template and stores it
// for the firm of a staff user. With --dry-run it only prints the validation
// report.
//
//	import-template --user 1 household.yaml
//	import-template --dry-run household.json
//	import-template --list-firms
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/avissapr/advisordesk/internal/database"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/avissapr/advisordesk/internal/stepper"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	fs := pflag.NewFlagSet("import-template", pflag.ExitOnError)
	fs.String("database-url", "", "PostgreSQL connection string")
	fs.Int("user", 0, "staff user recorded as the author; the template goes to their firm")
	fs.String("name", "", "template name (defaults to the name in the document)")
	fs.Bool("dry-run", false, "validate and print the report without storing")
	fs.Bool("list-firms", false, "list firms and exit")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("ADVISORDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		log.Fatalf("Failed to bind flags: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if v.GetBool("list-firms") {
		connect(ctx, v.GetString("database-url"))
		defer database.Close()
		listFirms(ctx)
		return
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: import-template [--user ID] [--name NAME] [--dry-run] <file.json|file.yaml>")
		os.Exit(2)
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	format := schema.FormatFromPath(path)

	if v.GetBool("dry-run") {
		tpl, report, err := schema.Decode(data, format)
		if err != nil {
			log.Fatalf("Invalid template: %v", err)
		}
		fmt.Printf("%s: %d pages\n", tpl.Name, len(tpl.Pages))
		printReport(report)
		return
	}

	userID := v.GetInt("user")
	if userID == 0 {
		log.Fatal("--user is required unless --dry-run is set")
	}

	connect(ctx, v.GetString("database-url"))
	defer database.Close()

	author, err := repository.NewUserRepository().FindByID(ctx, userID)
	if err != nil {
		database.Close()
		log.Fatalf("Failed to load user %d: %v", userID, err)
	}

	logger := security.NewLogger()
	validator := security.NewValidationService(security.DefaultSecurityConfig())
	svc := services.NewTemplateService(repository.NewTemplateRepository(), repository.NewAuditRepository(), validator, logger)

	caller := services.Caller{UserID: author.ID, FirmID: author.FirmID, Role: stepper.Role(author.Role), UserAgent: "import-template"}
	row, report, err := svc.Import(ctx, caller, v.GetString("name"), data, format)
	printReport(report)
	if err != nil {
		database.Close()
		log.Fatalf("Import failed: %v", err)
	}
	fmt.Printf("Stored template %d (%s) for firm %d\n", row.ID, row.Name, row.FirmID)
}

func connect(ctx context.Context, url string) {
	if err := database.Connect(ctx, database.NewConfig(url)); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
}

func listFirms(ctx context.Context) {
	firms, err := repository.NewFirmRepository().ListAll(ctx)
	if err != nil {
		database.Close()
		log.Fatalf("Failed to list firms: %v", err)
	}
	for _, f := range firms {
		fmt.Printf("%4d  %-30s %3d members %3d templates\n", f.ID, f.Name, f.MemberCount, f.TemplateCount)
	}
}

func printReport(report *schema.Report) {
	if report.Empty() {
		fmt.Println("No validation issues")
		return
	}
	for _, issue := range report.Quarantined {
		fmt.Printf("quarantined  %s\n", issue)
	}
	for _, issue := range report.Warnings {
		fmt.Printf("warning      %s\n", issue)
	}
}
