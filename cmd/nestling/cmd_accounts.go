package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"nestling/internal/auth"
	"nestling/internal/config"
	"nestling/internal/store"
)

var (
	userEmail         string
	userPassword      string
	userDisplayName   string
	userInviteCode    string
	userHouseholdName string

	babyName      string
	babyBirthDate string
	babySex       string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user account",
	Long: `Creates a user. With --invite the user joins an existing household;
otherwise a new household is created (name it with --household-name).`,
	RunE: runUserAdd,
}

var householdCmd = &cobra.Command{
	Use:   "household",
	Short: "Inspect the household",
}

var householdShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's household, members and invite code",
	RunE:  runHouseholdShow,
}

var babyCmd = &cobra.Command{
	Use:   "baby",
	Short: "Manage baby profiles",
}

var babyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a baby to a user's household",
	RunE:  runBabyAdd,
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "account email (required)")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "account password (required)")
	userAddCmd.Flags().StringVar(&userDisplayName, "display-name", "", "display name")
	userAddCmd.Flags().StringVar(&userInviteCode, "invite", "", "household invite code to join")
	userAddCmd.Flags().StringVar(&userHouseholdName, "household-name", "", "name for a new household")
	userCmd.AddCommand(userAddCmd)

	householdShowCmd.Flags().StringVar(&userEmail, "email", "", "email of a household member (required)")
	householdCmd.AddCommand(householdShowCmd)

	babyAddCmd.Flags().StringVar(&userEmail, "email", "", "email of a household member (required)")
	babyAddCmd.Flags().StringVar(&babyName, "name", "", "baby name (required)")
	babyAddCmd.Flags().StringVar(&babyBirthDate, "birth", "", "birth date YYYY-MM-DD (required)")
	babyAddCmd.Flags().StringVar(&babySex, "sex", "", "optional sex marker")
	babyCmd.AddCommand(babyAddCmd)

	rootCmd.AddCommand(userCmd, householdCmd, babyCmd)
}

// openStore loads config and opens the database for admin commands.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	if userEmail == "" || userPassword == "" {
		return fmt.Errorf("--email and --password are required")
	}

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Admin commands bypass the open-registration switch.
	svc := auth.New(st, cfg.GetSessionTTL(), bcrypt.DefaultCost, true)
	actx, err := svc.Register(userEmail, userPassword, userDisplayName, userInviteCode, userHouseholdName)
	if err != nil {
		return err
	}

	fmt.Printf("Created user %s in household %q\n", actx.User.Email, actx.Household.Name)
	fmt.Printf("Invite code for other caregivers: %s\n", actx.Household.InviteCode)
	return nil
}

func runHouseholdShow(cmd *cobra.Command, args []string) error {
	if userEmail == "" {
		return fmt.Errorf("--email is required")
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.GetUserByEmail(userEmail)
	if err != nil {
		return err
	}
	hh, err := st.GetHousehold(user.HouseholdID)
	if err != nil {
		return err
	}
	members, err := st.ListHouseholdUsers(hh.ID)
	if err != nil {
		return err
	}
	babies, err := st.ListBabies(hh.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Household: %s\nInvite code: %s\n\nMembers:\n", hh.Name, hh.InviteCode)
	for _, m := range members {
		fmt.Printf("  %s (%s)\n", m.Email, m.DisplayName)
	}
	fmt.Println("\nBabies:")
	for _, b := range babies {
		fmt.Printf("  %s, born %s\n", b.Name, b.BirthDate.Format("2006-01-02"))
	}
	return nil
}

func runBabyAdd(cmd *cobra.Command, args []string) error {
	if userEmail == "" || babyName == "" || babyBirthDate == "" {
		return fmt.Errorf("--email, --name and --birth are required")
	}
	birth, err := time.Parse("2006-01-02", babyBirthDate)
	if err != nil {
		return fmt.Errorf("invalid --birth, want YYYY-MM-DD: %w", err)
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.GetUserByEmail(userEmail)
	if err != nil {
		return err
	}
	baby, err := st.CreateBaby(user.HouseholdID, babyName, birth, babySex)
	if err != nil {
		return err
	}

	fmt.Printf("Added %s (id %s)\n", baby.Name, baby.BabyID)
	return nil
}
