package system

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Alijeyrad/tabib_backend/internal/app"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/staff"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func NewSeedCommand() *cobra.Command {
	var (
		username string
		fullName string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the first administrator account",
		Long: `Create an administrator who can sign in and add the rest of the staff.
The generated password is printed once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}

			var (
				staffSvc staff.Service
				authz    authorize.IAuthorization
			)
			fxApp := fx.New(
				fx.Supply(cfg),
				app.InfraModule,
				app.ServiceModule,
				fx.Populate(&staffSvc, &authz),
				fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
			)
			if err := fxApp.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := fxApp.Start(ctx); err != nil {
				return err
			}
			defer fxApp.Stop(context.Background())

			system := repo.Caller{UserID: uuid.Nil, Role: repo.RoleAdmin}
			res, err := staffSvc.Create(ctx, system, staff.CreateStaffRequest{
				FullName: fullName,
				Username: username,
				Role:     repo.RoleAdmin,
			})
			if err != nil {
				return fmt.Errorf("failed to create administrator: %w", err)
			}
			if err := authorize.AssignSuperAdmin(ctx, authz, res.Staff.ID.String()); err != nil {
				return fmt.Errorf("failed to grant superadmin: %w", err)
			}

			fmt.Printf("Administrator %q created.\nPassword: %s\n", res.Staff.Username, res.GeneratedPassword)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "Username of the administrator")
	cmd.Flags().StringVar(&fullName, "name", "Clinic Administrator", "Full name of the administrator")

	return cmd
}
