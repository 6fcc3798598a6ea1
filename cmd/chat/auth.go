package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/sdk"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string

	registerName string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		email := prompt("Email", loginEmail)
		password := prompt("Password", loginPassword)
		user, err := app.Session.Login(ctx, email, password)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(user)
		}
		fmt.Printf("%s %s\n", okStyle.Render("Logged in as"), nameStyle.Render(user.Name))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		app, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		app.Session.Logout(ctx)
		fmt.Println(dimStyle.Render("Logged out"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		return withSession(ctx, func(app *service.App) error {
			user := app.Session.User()
			if jsonOutput {
				return printJSON(user)
			}
			fmt.Printf("Name:  %s\n", nameStyle.Render(user.Name))
			fmt.Printf("Email: %s\n", user.Email)
			fmt.Printf("Id:    %s\n", dimStyle.Render(user.Id))
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(func(ctx context.Context, app *service.App) (*sdk.MessageResponse, error) {
			return app.Session.Register(ctx, &sdk.RegisterRequest{
				Name:     prompt("Name", registerName),
				Email:    prompt("Email", loginEmail),
				Password: prompt("Password", loginPassword),
			})
		})
	},
}

var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password",
	Short: "Request a password reset mail",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(func(ctx context.Context, app *service.App) (*sdk.MessageResponse, error) {
			return app.Session.ForgotPassword(ctx, prompt("Email", loginEmail))
		})
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <token>",
	Short: "Set a new password with a reset token",
	Long:  "Set a new password with a reset token. With --check the token is only validated.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")
		return runWithApp(func(ctx context.Context, app *service.App) (*sdk.MessageResponse, error) {
			if check {
				return app.Session.ValidateResetToken(ctx, args[0])
			}
			return app.Session.ResetPassword(ctx, args[0], prompt("New password", loginPassword))
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd, forgotPasswordCmd, resetPasswordCmd} {
		c.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
		c.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (prompted when empty)")
	}
	registerCmd.Flags().StringVarP(&registerName, "name", "n", "", "Display name")
	resetPasswordCmd.Flags().Bool("check", false, "Only validate the token")
}

// runWithApp runs an unauthenticated account call and prints its message
func runWithApp(fn func(ctx context.Context, app *service.App) (*sdk.MessageResponse, error)) error {
	ctx, cancel := commandContext()
	defer cancel()

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := fn(ctx, app)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	fmt.Println(okStyle.Render(resp.Message))
	return nil
}

var stdin = bufio.NewReader(os.Stdin)

// prompt returns value, or asks for it on stdin when empty
func prompt(label, value string) string {
	if value != "" {
		return value
	}
	fmt.Printf("%s: ", label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}
