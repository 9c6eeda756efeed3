package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rentport/internal/apiclient"
	"rentport/internal/cache"
	"rentport/internal/constants"
	"rentport/internal/logger"
	"rentport/internal/realtime"
	"rentport/internal/resource"
	"rentport/internal/tabid"
	"rentport/internal/tabsession"
	"rentport/internal/utils"
)

const (
	colorReset  = constants.ColorReset
	colorBold   = constants.ColorBold
	colorDim    = constants.ColorDim
	colorCyan   = constants.ColorCyan
	colorGreen  = constants.ColorGreen
	colorYellow = constants.ColorYellow
	colorRed    = constants.ColorRed
)

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s%srentport tab%s %sv%s%s\n", colorBold, colorCyan, colorReset, colorBold, constants.Version, colorReset)
	fmt.Printf("  %sOne process = one browser tab%s\n", colorDim, colorReset)
	fmt.Println()
}

func printHint(text string) {
	fmt.Printf("  %s%s%s\n", colorDim, text, colorReset)
}

func printField(label, value, valueColor string) {
	fmt.Printf("  %s%-12s%s %s%s%s\n", colorDim, label, colorReset, valueColor, value, colorReset)
}

func fatal(msg string) {
	fmt.Printf("\n  %s✗ %s%s\n\n", colorRed, msg, colorReset)
	os.Exit(1)
}

func stateDir() string {
	if dir := os.Getenv("RENTPORT_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rentport"
	}
	return filepath.Join(home, ".local", "share", "rentport", "tabs")
}

func main() {
	godotenv.Load()

	name := flag.String("name", "tab1", "tab name; reusing a name reuses that tab's identity")
	email := flag.String("email", "", "log this tab in as the given user")
	password := flag.String("password", "", "password for -email")
	logout := flag.Bool("logout", false, "log this tab out and exit")
	create := flag.String("create", "", "create an invoice, format month:amount (e.g. 2024-03:1000)")
	flag.Parse()

	serverURL := strings.TrimSuffix(utils.GetEnv("RENTPORT_SERVER", constants.DefaultServerURL), "/")

	dir := stateDir()
	storage, err := tabid.NewFileStorage(filepath.Join(dir, *name+".json"))
	if err != nil {
		fatal("failed to open tab storage: " + err.Error())
	}

	identity := tabid.NewIdentity(storage)
	tabID := identity.TabID()

	tabLog, err := logger.NewLogger(tabID)
	if err != nil {
		fatal("failed to initialize logger: " + err.Error())
	}
	defer tabLog.Close()

	client, err := apiclient.New(serverURL, tabID)
	if err != nil {
		fatal(err.Error())
	}

	printBanner()
	printField("tab", *name, colorCyan)
	printField("tab id", tabID, colorDim)
	printField("server", serverURL, colorDim)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	ambient := tabsession.NewFileAmbient(filepath.Join(dir, "ambient.json"), time.Second)

	if *logout {
		if err := client.Logout(ctx); err != nil {
			printHint(colorYellow + "server logout failed: " + err.Error() + colorReset)
		}
		ambient.SignOut()
		tabLog.LogEvent("logged out")
		fmt.Printf("  %s● logged out%s\n\n", colorGreen, colorReset)
		return
	}

	channel := realtime.NewChannel(serverURL, realtime.DefaultBackoff())
	channel.OnStateChange(func(state realtime.State) {
		tabLog.LogEvent("channel " + state.String())
		switch state {
		case realtime.StateConnected:
			fmt.Printf("  %s● live updates on%s\n", colorGreen, colorReset)
		case realtime.StateDegraded:
			fmt.Printf("  %s● live updates paused%s\n", colorYellow, colorReset)
		}
	})

	refreshers := cache.NewSet(channel)
	invoices := cache.NewInvoices(client, channel)
	refreshers.Add(invoices)
	invoices.OnChange(func(records []resource.Invoice) {
		fmt.Printf("  %sinvoices (%d)%s\n", colorBold, len(records), colorReset)
		for _, in := range records {
			marker := " "
			if cache.IsTempID(in.ID) {
				marker = colorYellow + "~" + colorReset
			}
			fmt.Printf("   %s %s  %s  %d  %s%s%s\n", marker, in.ID, in.Month, in.Amount, colorDim, in.Status, colorReset)
		}
	})

	manager := tabsession.NewManager(identity, storage, ambient)
	manager.OnChange(func(state tabsession.State, cred *tabsession.Credential) {
		tabLog.LogEvent("session " + state.String())
		switch state {
		case tabsession.StateAuthenticated:
			printField("user", cred.Email, colorGreen)
			channel.Connect(cred.AccessToken)
		case tabsession.StateUnauthenticated:
			printHint("signed out")
			channel.Disconnect()
		}
	})
	manager.Start()
	defer manager.Stop()

	if *email != "" {
		data, err := client.Login(ctx, *email, *password)
		if err != nil {
			fatal("login failed: " + err.Error())
		}
		tabLog.LogEvent("logged in as " + data.User.Email)
		// Publish through the ambient session; the manager adopts it
		// from there, same as every other tab.
		ambient.SignIn(tabsession.Credential{
			UserID:      data.User.ID,
			Email:       data.User.Email,
			Name:        data.User.Name,
			Role:        data.User.Role,
			AccessToken: data.AccessToken,
		})
	}

	if cred := manager.Credential(); cred == nil {
		printHint("not signed in; run with -email and -password")
	} else if err := invoices.Refresh(ctx); err != nil {
		printHint(colorYellow + "initial fetch failed: " + err.Error() + colorReset)
	}

	if *create != "" {
		parts := strings.SplitN(*create, ":", 2)
		if len(parts) != 2 {
			fatal("invalid -create format, want month:amount")
		}
		amount, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			fatal("invalid amount: " + parts[1])
		}
		if _, err := invoices.Create(ctx, resource.Invoice{Month: parts[0], Amount: amount}); err != nil {
			tabLog.LogError("optimistic create rolled back", err)
			printHint(colorRed + "create failed (rolled back): " + err.Error() + colorReset)
		}
	}

	fmt.Println()
	printHint("ctrl+c to close this tab")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	fmt.Printf("  %s● closing tab...%s\n", colorYellow, colorReset)
	channel.Disconnect()
	fmt.Printf("  %s● done%s\n\n", colorGreen, colorReset)
}
