package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/admanager/internal/ldap"
	"github.com/isometry/admanager/internal/service"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Look up, edit, list and create users",
	}

	cmd.AddCommand(
		newUserShowCmd(a),
		newUserEditCmd(a),
		newUserListCmd(a),
		newUserCreateCmd(a),
	)
	return cmd
}

func newUserShowCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <username>",
		Short: "Show a user by sAMAccountName",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkOutput(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.session.Users.FindUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printUser(a.out, output, user)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}

// editFlags maps each mutable attribute to its flag name.
var editFlags = map[string]string{
	"givenName":                  "given-name",
	"sn":                         "surname",
	"displayName":                "display-name",
	"description":                "description",
	"physicalDeliveryOfficeName": "office",
	"telephoneNumber":            "telephone",
	"mail":                       "email",
	"wWWHomePage":                "web-page",
	"initials":                   "initials",
	"title":                      "title",
}

func newUserEditCmd(a *app) *cobra.Command {
	var output string
	values := make(map[string]*string, len(editFlags))

	cmd := &cobra.Command{
		Use:   "edit <username>",
		Short: "Change attributes of a user",
		Long: `Looks the user up, then saves the attributes given as flags.

Only flags present on the command line are changed. A flag given an empty
value, e.g. --title "", clears the attribute. When the user has no display
name and none is given, one is composed from the given name and surname.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkOutput(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			previous, err := a.session.Users.FindUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			edits := &ldap.User{}
			for _, attr := range ldap.MutableUserAttributes() {
				if cmd.Flags().Changed(editFlags[attr.Name]) {
					v := *values[attr.Name]
					attr.Set(edits, &v)
				}
			}

			saved, err := a.session.Editor.SaveChanges(cmd.Context(), previous, edits)
			if err != nil {
				return err
			}
			return printUser(a.out, output, saved)
		},
	}

	for _, attr := range ldap.MutableUserAttributes() {
		values[attr.Name] = cmd.Flags().String(editFlags[attr.Name], "", fmt.Sprintf("new %s (empty clears)", attr.Label))
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list <ou-dn>",
		Short: "List the users in an organizational unit",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkOutput(output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.session.Users.ListUsers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printUserSummaries(a.out, output, users)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var in service.CreateUserInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an enabled user account",
		Long: `Creates a user in an organizational unit. The password is prompted for
twice. The account is created disabled, given its password and then enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Password, err = a.readSecret("New password: "); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if in.PasswordConfirmation, err = a.readSecret("Confirm password: "); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			user, err := a.session.Creator.CreateUser(cmd.Context(), &in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %s\n", *user.DistinguishedName)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.SAMAccountName, "sam-account-name", "", "sAMAccountName of the new user (required)")
	f.StringVar(&in.GivenName, "given-name", "", "given name (required)")
	f.StringVar(&in.Surname, "surname", "", "surname (required)")
	f.StringVar(&in.DisplayName, "display-name", "", "display name (composed when omitted)")
	f.StringVar(&in.Description, "description", "", "description")
	f.StringVar(&in.Office, "office", "", "office")
	f.StringVar(&in.TelephoneNumber, "telephone", "", "telephone number")
	f.StringVar(&in.Email, "email", "", "e-mail address")
	f.StringVar(&in.WebPage, "web-page", "", "web page")
	f.StringVar(&in.OrganizationalUnit, "ou", "", "distinguished name of the target OU (required)")
	return cmd
}
