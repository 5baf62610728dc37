package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/model"
	"github.com/remarket/remarket/internal/repo"
	"github.com/remarket/remarket/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	syncedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var productsCmd = &cobra.Command{
	Use:     "products",
	GroupID: "products",
	Short:   "Manage product listings",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products from the local cache",
	Long: `List all products from the local record store.

The list is served entirely from the local cache; records that have not yet
been pushed to the server are marked as pending. Use --watch to keep the
list open and re-render it on every local change.`,
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")

		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		for outcome := range a.repo.Observe(ctx) {
			switch outcome.Kind {
			case repo.KindLoading:
				// First snapshot is on its way.
			case repo.KindSuccess:
				renderProducts(ctx, a, outcome.Value)
				if !watch {
					return
				}
			case repo.KindFailure:
				fmt.Fprintf(os.Stderr, "Error: %v\n", outcome.Err)
				os.Exit(1)
			case repo.KindIdle:
			}
		}
	},
}

func renderProducts(ctx context.Context, a *app, products []model.Product) {
	if len(products) == 0 {
		fmt.Println(dimStyle.Render("No products in the local cache. Try 'remarket refresh'."))
		return
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%-38s %-12s %-14s %8s  %s", "ID", "BRAND", "MODEL", "PRICE", "SYNC")))
	for _, p := range products {
		state := syncedStyle.Render("synced")
		if rec, err := a.store.Get(ctx, p.ID); err == nil && !rec.IsSynced {
			state = dirtyStyle.Render("pending " + string(rec.Pending))
		}
		fmt.Printf("%-38s %-12s %-14s %8.2f  %s\n", p.ID, p.Brand, p.Model, p.Price, state)
	}
}

var productsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one product",
	Long: `Show a single product.

A locally cached copy is shown without a network round-trip; only when the
product is unknown locally is it fetched from the server and cached.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		for outcome := range a.repo.GetByID(ctx, args[0]) {
			switch outcome.Kind {
			case repo.KindLoading:
			case repo.KindSuccess:
				printProduct(outcome.Value)
			case repo.KindFailure:
				exitWithLookupError(outcome.Err)
			case repo.KindIdle:
			}
		}
	},
}

func printProduct(p model.Product) {
	fmt.Println(titleStyle.Render(p.Brand + " " + p.Model))
	fmt.Printf("  id:          %s\n", p.ID)
	fmt.Printf("  seller:      %s\n", p.SellerID)
	fmt.Printf("  storage:     %s\n", p.Storage)
	fmt.Printf("  price:       %.2f\n", p.Price)
	if p.IMEI != "" {
		fmt.Printf("  imei:        %s\n", p.IMEI)
	}
	if p.Description != "" {
		fmt.Printf("  description: %s\n", p.Description)
	}
	if len(p.Images) > 0 {
		fmt.Printf("  images:      %s\n", strings.Join(p.Images, ", "))
	}
	fmt.Printf("  status:      %s  active: %v\n", p.Status, p.Active)
	if p.CreatedAt != "" {
		fmt.Println(dimStyle.Render("  created " + p.CreatedAt + "  updated " + p.UpdatedAt))
	}
}

func exitWithLookupError(err error) {
	var se *errs.ServerError
	if errors.As(err, &se) {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+se.Message()))
	} else {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("Error: %v", err)))
	}
	os.Exit(1)
}

var productsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a product listing",
	Long: `Create a new product listing.

The product is written to the local store immediately and pushed to the
server by the next reconcile pass; creating works offline. Without flags an
interactive form is shown.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		draft, err := draftFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if draft.Brand == "" && draft.Model == "" {
			if err := runCreateForm(&draft); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := a.repo.Create(ctx, draft); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Product saved locally.")
		syncBestEffort(ctx, a)
	},
}

// runCreateForm collects the draft interactively.
func runCreateForm(d *model.Draft) error {
	var price string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Brand").Value(&d.Brand),
		huh.NewInput().Title("Model").Value(&d.Model),
		huh.NewInput().Title("Storage").Placeholder("128GB").Value(&d.Storage),
		huh.NewInput().Title("Price").Placeholder("199.99").Value(&price).
			Validate(func(s string) error {
				_, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return fmt.Errorf("enter a number")
				}
				return nil
			}),
		huh.NewInput().Title("IMEI (optional)").Value(&d.IMEI),
		huh.NewText().Title("Description").Value(&d.Description),
	))
	if err := form.Run(); err != nil {
		return err
	}
	parsed, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q", price)
	}
	d.Price = parsed
	return nil
}

func draftFromFlags(cmd *cobra.Command) (model.Draft, error) {
	var d model.Draft
	d.Brand, _ = cmd.Flags().GetString("brand")
	d.Model, _ = cmd.Flags().GetString("model")
	d.Storage, _ = cmd.Flags().GetString("storage")
	d.Price, _ = cmd.Flags().GetFloat64("price")
	d.IMEI, _ = cmd.Flags().GetString("imei")
	d.Description, _ = cmd.Flags().GetString("description")
	d.Images, _ = cmd.Flags().GetStringSlice("image")
	d.BoxURL, _ = cmd.Flags().GetString("box")
	d.InvoiceURL, _ = cmd.Flags().GetString("invoice")
	return d, nil
}

var productsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a product listing",
	Long: `Update an existing product listing.

The record must exist in the local store. Changes are applied locally and
pushed by the next reconcile pass.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		rec, err := a.store.Get(ctx, args[0])
		if err != nil || rec.DeletedLocally {
			fmt.Fprintf(os.Stderr, "Error: product %s not found locally\n", args[0])
			os.Exit(1)
		}

		// Start from the current fields so unspecified flags keep their value.
		draft := draftFromRecord(rec)
		applyFlagOverrides(cmd, &draft)

		if err := a.repo.Update(ctx, args[0], draft); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Product updated locally.")
		syncBestEffort(ctx, a)
	},
}

func draftFromRecord(rec store.Record) model.Draft {
	return model.Draft{
		Brand:       rec.Brand,
		Model:       rec.Model,
		Storage:     rec.Storage,
		Price:       rec.Price,
		IMEI:        rec.IMEI,
		Description: rec.Description,
		Images:      rec.Images,
		BoxURL:      rec.BoxURL,
		InvoiceURL:  rec.InvoiceURL,
	}
}

func applyFlagOverrides(cmd *cobra.Command, d *model.Draft) {
	if cmd.Flags().Changed("brand") {
		d.Brand, _ = cmd.Flags().GetString("brand")
	}
	if cmd.Flags().Changed("model") {
		d.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("storage") {
		d.Storage, _ = cmd.Flags().GetString("storage")
	}
	if cmd.Flags().Changed("price") {
		d.Price, _ = cmd.Flags().GetFloat64("price")
	}
	if cmd.Flags().Changed("imei") {
		d.IMEI, _ = cmd.Flags().GetString("imei")
	}
	if cmd.Flags().Changed("description") {
		d.Description, _ = cmd.Flags().GetString("description")
	}
	if cmd.Flags().Changed("image") {
		d.Images, _ = cmd.Flags().GetStringSlice("image")
	}
}

var productsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product listing",
	Long: `Delete a product listing.

The record disappears from local reads immediately; the server-side delete
happens on the next reconcile pass.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if err := a.repo.Delete(ctx, args[0]); err != nil {
			if errors.Is(err, errs.ErrNotFoundLocal) {
				fmt.Fprintf(os.Stderr, "Error: product %s not found locally\n", args[0])
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}
		fmt.Println("Product deleted locally.")
		syncBestEffort(ctx, a)
	},
}

var productsReportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Report a listing for review",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")

		a := mustApp()
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if err := a.repo.Report(ctx, args[0], reason); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Report submitted.")
	},
}

// syncBestEffort attempts an immediate reconcile after a mutation. Being
// offline is fine, the change is already durable locally.
func syncBestEffort(ctx context.Context, a *app) {
	if _, err := a.repo.SyncPending(ctx); err != nil {
		fmt.Println(dimStyle.Render("Could not reach the server; changes will sync later."))
	}
}

func init() {
	for _, cmd := range []*cobra.Command{productsCreateCmd, productsUpdateCmd} {
		cmd.Flags().String("brand", "", "product brand")
		cmd.Flags().String("model", "", "product model")
		cmd.Flags().String("storage", "", "storage capacity, e.g. 128GB")
		cmd.Flags().Float64("price", 0, "asking price")
		cmd.Flags().String("imei", "", "device IMEI")
		cmd.Flags().String("description", "", "listing description")
		cmd.Flags().StringSlice("image", nil, "image file or URL (repeatable)")
		cmd.Flags().String("box", "", "box photo file or URL")
		cmd.Flags().String("invoice", "", "invoice file or URL")
	}
	productsListCmd.Flags().BoolP("watch", "w", false, "keep watching for local changes")
	productsReportCmd.Flags().String("reason", "", "reason for the report")
	_ = productsReportCmd.MarkFlagRequired("reason")

	productsCmd.AddCommand(productsListCmd, productsGetCmd, productsCreateCmd,
		productsUpdateCmd, productsDeleteCmd, productsReportCmd)
	rootCmd.AddCommand(productsCmd)
}
