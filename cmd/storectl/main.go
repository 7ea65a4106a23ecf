// Command storectl runs operator tasks against the store database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/coordinator/sagalog"
	inventoryapp "github.com/jcmexdev/storefront/internal/inventory-service/app"
	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/config"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

const usage = `usage: storectl <command> [flags]

commands:
  migrate                         create or update the schema
  seed [-products N] [-stock N]   create a demo catalog when empty
  stock [-low]                    print stock levels
  orders [-status S] [-limit N]   print recent orders
  restock -variant ID -qty N      add units to a variant
  sagas (-id SAGA | -order ID)    print the log of one checkout saga
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	gdb, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close(gdb)

	tx := database.NewTransactor(gdb, cfg.TxMaxAttempts)
	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "migrate":
		err = migrate(gdb)
	case "seed":
		err = seed(ctx, gdb, args)
	case "stock":
		err = stock(ctx, tx, args, os.Stdout)
	case "orders":
		err = orders(ctx, tx, args, os.Stdout)
	case "restock":
		err = restock(ctx, tx, args)
	case "sagas":
		err = sagas(ctx, gdb, args, os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func migrate(gdb *gorm.DB) error {
	all := append(inventorydomain.Models(), orderdomain.Models()...)
	if err := database.Migrate(gdb, append(all, sagalog.Models()...)...); err != nil {
		return err
	}
	log.Println("schema up to date")
	return nil
}

func seed(ctx context.Context, gdb *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	products := fs.Int("products", 5, "number of products to create")
	initialStock := fs.Int("stock", 10, "initial stock per variant")
	_ = fs.Parse(args)

	if err := migrate(gdb); err != nil {
		return err
	}
	n, err := inventoryapp.SeedCatalog(ctx, gdb, inventoryapp.SeedConfig{Products: *products, InitialStock: *initialStock})
	if err != nil {
		return err
	}
	if n == 0 {
		log.Println("catalog already populated; nothing seeded")
		return nil
	}
	log.Printf("seeded %d products", n)
	return nil
}

func stock(ctx context.Context, tx *database.Transactor, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("stock", flag.ExitOnError)
	lowOnly := fs.Bool("low", false, "only variants at or below their low-stock threshold")
	_ = fs.Parse(args)

	levels, err := inventoryapp.NewLedger(tx, inventoryapp.NewMutator()).StockLevels(ctx, *lowOnly)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Product", "Variant", "Size", "Color", "Material", "Stock", "Threshold", "Tracked")
	for _, l := range levels {
		if err := table.Append(l.ProductName, l.VariantID, l.Size, l.Color, l.Material,
			strconv.Itoa(l.Stock), strconv.Itoa(l.LowStockThreshold), strconv.FormatBool(l.TrackStock)); err != nil {
			return err
		}
	}
	return table.Render()
}

func orders(ctx context.Context, tx *database.Transactor, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	limit := fs.Int("limit", 20, "maximum rows")
	_ = fs.Parse(args)

	filter := orderapp.ListFilter{Limit: *limit}
	if *status != "" {
		s, err := orderdomain.ParseStatus(*status)
		if err != nil {
			return err
		}
		filter.Status = s
	}

	list, err := orderapp.NewService(tx, nil).List(ctx, filter)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Code", "Status", "Payment", "Paid", "Stock taken", "Total", "Created")
	for _, o := range list {
		if err := table.Append(o.Code, string(o.Status), string(o.PaymentMethod), strconv.FormatBool(o.IsPaid),
			strconv.FormatBool(o.InventoryDecremented), o.Total.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04")); err != nil {
			return err
		}
	}
	return table.Render()
}

func restock(ctx context.Context, tx *database.Transactor, args []string) error {
	fs := flag.NewFlagSet("restock", flag.ExitOnError)
	variantID := fs.String("variant", "", "variant id")
	qty := fs.Int("qty", 0, "units to add")
	_ = fs.Parse(args)

	if *variantID == "" {
		return fmt.Errorf("-variant is required")
	}
	v, err := inventoryapp.NewLedger(tx, inventoryapp.NewMutator()).Restock(ctx, *variantID, *qty)
	if err != nil {
		return err
	}
	log.Printf("variant %s now has %d units", v.ID, v.Stock)
	return nil
}

func sagas(ctx context.Context, gdb *gorm.DB, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("sagas", flag.ExitOnError)
	sagaID := fs.String("id", "", "saga id")
	orderID := fs.String("order", "", "order id; shows the latest saga that touched it")
	_ = fs.Parse(args)

	repo := sagalog.NewGormRepository(gdb)
	if *sagaID == "" {
		if *orderID == "" {
			return fmt.Errorf("-id or -order is required")
		}
		id, err := repo.SagaIDForOrder(ctx, *orderID)
		if err != nil {
			return err
		}
		*sagaID = id
	}

	latest, err := repo.Latest(ctx, *sagaID)
	if err != nil {
		return err
	}
	history, err := repo.History(ctx, *sagaID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "saga %s: %s (order %s, trace %s)\n", latest.SagaID, latest.Status, latest.OrderID, latest.TraceID)
	table := tablewriter.NewWriter(w)
	table.Header("At", "Status", "Step", "Errors")
	for _, e := range history {
		if err := table.Append(e.UpdatedAt.Format("2006-01-02 15:04:05"), string(e.Status), e.CurrentStep, e.ErrorMessages); err != nil {
			return err
		}
	}
	return table.Render()
}
