package main

import (
	"fmt"

	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search users by name or email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		return withSession(ctx, func(app *service.App) error {
			users, err := app.Users.SearchUsers(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(users)
			}
			if len(users) == 0 {
				fmt.Println(dimStyle.Render("no users found"))
				return nil
			}
			for _, u := range users {
				fmt.Printf("%s %s  %s\n", nameStyle.Render(u.Name), u.Email, idStyle.Render(u.Id))
			}
			return nil
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Show a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		return withSession(ctx, func(app *service.App) error {
			user, err := app.Users.GetUserInfo(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(user)
			}
			fmt.Printf("Name:  %s\n", nameStyle.Render(user.Name))
			fmt.Printf("Email: %s\n", user.Email)
			fmt.Printf("Id:    %s\n", idStyle.Render(user.Id))
			return nil
		})
	},
}
