package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/canopyhq/canopy/internal/config"
	"github.com/canopyhq/canopy/internal/domain/capability"
	"github.com/canopyhq/canopy/internal/domain/user"
	"github.com/google/uuid"
)

// runAdmin dispatches admin subcommands (regenerate, create-user,
// list-users). They connect to the same storage backend as the server and
// act with the internal administrator identity.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "regenerate":
		return runAdminRegenerate()
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers()
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: canopy admin <command> [options]

Commands:
  regenerate    Rebuild every bundle and manifest from stored entities
  create-user   Create an account directly, bypassing signup approval
  list-users    List all accounts
  help          Show this help message

Examples:
  canopy admin regenerate
  canopy admin create-user --email ops@example.com --name "Ops" --role admin
  canopy admin list-users
`)
}

// loadAdminDeps wires the service graph against the configured backend.
// Logging goes to stderr so command output stays scriptable.
func loadAdminDeps() (*services, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return buildServices(context.Background(), cfg, log, nil)
}

func adminCaps() capability.Capability {
	return capability.NewSet(capability.RoleAdmin, nil, "", "admin-cli")
}

func runAdminRegenerate() error {
	svcs, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svcs.invalidator.RegenerateEverything(context.Background()); err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	fmt.Println("bundles and manifests regenerated")
	return nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	emailFlag := fs.String("email", "", "account email (required)")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "member", "role: platform, member, orgAdmin or admin")
	org := fs.String("org", "", "organization id for member and orgAdmin roles")
	tier := fs.String("tier", "", "membership tier key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *emailFlag == "" {
		return fmt.Errorf("--email is required")
	}
	switch capability.Role(*role) {
	case capability.RolePlatform, capability.RoleMember, capability.RoleOrgAdmin, capability.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}

	var orgID *uuid.UUID
	if *org != "" {
		id, err := uuid.Parse(*org)
		if err != nil {
			return fmt.Errorf("invalid --org: %w", err)
		}
		orgID = &id
	}

	svcs, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if _, err := svcs.auth.LookupUser(ctx, *emailFlag); err == nil {
		return fmt.Errorf("account for %s already exists", *emailFlag)
	}

	u := &user.User{
		ID:             uuid.New(),
		Email:          *emailFlag,
		Name:           *name,
		Role:           capability.Role(*role),
		OrganizationID: orgID,
		TierKey:        *tier,
		Enabled:        true,
	}
	if err := svcs.auth.SaveUser(ctx, adminCaps(), u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	fmt.Printf("created %s (%s)\n", u.Email, u.Role)
	return nil
}

func runAdminListUsers() error {
	svcs, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	users, err := svcs.auth.ListUsers(context.Background(), adminCaps())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tENABLED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", u.Email, u.Name, u.Role, u.Enabled)
	}
	return w.Flush()
}
