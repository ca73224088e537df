package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	profileFile string
	personaFile string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage target profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a target profile from a YAML definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(profileFile)
		if err != nil {
			return eris.Wrap(err, "read profile file")
		}
		var profile model.TargetProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return eris.Wrap(err, "parse profile file")
		}
		if profile.ClientID == "" || profile.Name == "" {
			return eris.New("profile requires client_id and name")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CreateProfile(ctx, &profile); err != nil {
			return err
		}
		fmt.Println(profile.ID)
		return nil
	},
}

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage persona filters",
}

var personaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a persona filter from a YAML definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(personaFile)
		if err != nil {
			return eris.Wrap(err, "read persona file")
		}
		var persona model.PersonaFilter
		if err := yaml.Unmarshal(data, &persona); err != nil {
			return eris.Wrap(err, "parse persona file")
		}
		if persona.ClientID == "" || persona.Name == "" {
			return eris.New("persona requires client_id and name")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CreatePersona(ctx, &persona); err != nil {
			return err
		}
		fmt.Println(persona.ID)
		return nil
	},
}

func init() {
	profileCreateCmd.Flags().StringVarP(&profileFile, "file", "f", "", "profile YAML file (required)")
	_ = profileCreateCmd.MarkFlagRequired("file")
	profileCmd.AddCommand(profileCreateCmd)
	rootCmd.AddCommand(profileCmd)

	personaCreateCmd.Flags().StringVarP(&personaFile, "file", "f", "", "persona YAML file (required)")
	_ = personaCreateCmd.MarkFlagRequired("file")
	personaCmd.AddCommand(personaCreateCmd)
	rootCmd.AddCommand(personaCmd)
}
