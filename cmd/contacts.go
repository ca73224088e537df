package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/source"
)

var (
	contactsDomain    string
	contactsTitles    string
	contactsLimit     int
	contactsFirstName string
	contactsLastName  string
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Find people and email addresses at a company",
}

var contactsFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Search for contacts at a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var titles []string
		if contactsTitles != "" {
			titles = strings.Split(contactsTitles, ",")
		}

		contacts, err := buildOrchestrator(st).SearchPeople(ctx, source.PeopleQuery{
			Domain: contactsDomain,
			Titles: titles,
			Limit:  contactsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tTITLE\tEMAIL\tVERIFIED")
		for _, c := range contacts {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", c.FullName, c.Title, c.Email, c.EmailVerified)
		}
		return w.Flush()
	},
}

var contactsEmailCmd = &cobra.Command{
	Use:   "email",
	Short: "Find a person's email address at a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		contact, err := buildOrchestrator(st).FindEmail(ctx, source.EmailQuery{
			Domain:    contactsDomain,
			FirstName: contactsFirstName,
			LastName:  contactsLastName,
		})
		if err != nil {
			return err
		}
		if contact == nil {
			fmt.Println("no address found")
			return nil
		}
		fmt.Println(contact.Email)
		return nil
	},
}

func init() {
	contactsFindCmd.Flags().StringVar(&contactsDomain, "domain", "", "company domain (required)")
	contactsFindCmd.Flags().StringVar(&contactsTitles, "titles", "", "comma-separated title filters")
	contactsFindCmd.Flags().IntVar(&contactsLimit, "limit", 10, "maximum contacts")
	_ = contactsFindCmd.MarkFlagRequired("domain")

	contactsEmailCmd.Flags().StringVar(&contactsDomain, "domain", "", "company domain (required)")
	contactsEmailCmd.Flags().StringVar(&contactsFirstName, "first", "", "first name (required)")
	contactsEmailCmd.Flags().StringVar(&contactsLastName, "last", "", "last name (required)")
	_ = contactsEmailCmd.MarkFlagRequired("domain")
	_ = contactsEmailCmd.MarkFlagRequired("first")
	_ = contactsEmailCmd.MarkFlagRequired("last")

	contactsCmd.AddCommand(contactsFindCmd, contactsEmailCmd)
	rootCmd.AddCommand(contactsCmd)
}
