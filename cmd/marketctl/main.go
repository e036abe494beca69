// cmd/marketctl/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"marketapp/internal/config"
	"marketapp/internal/gateway"
	"marketapp/internal/guard"
	"marketapp/internal/identity"
	"marketapp/internal/logging"
	"marketapp/internal/models"
	"marketapp/internal/orders"
	"marketapp/internal/session"
)

const usage = `marketctl <command>

commands:
  login      --email --password
  register   --name --email --password --role (admin|enterprise|buyer)
  logout
  whoami
  orders     list [--buyer id] [--enterprise id]
  orders     create --item productID:qty:price ...
  orders     approve <orderID> --warehouse itemID=name ...
  orders     reject|ship|deliver|cancel <orderID>
  admin      users
  admin      set-status <userID> [--enterprise-status s] [--block|--unblock]
`

type app struct {
	svc    *identity.Service
	guard  *guard.Guard
	engine *orders.Engine
	gw     gateway.API
}

func main() {
	// --- Load config (config.yaml + env overrides) ---
	cfg := config.Load()

	// --- Logger ---
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format == "json")

	// --- Session store ---
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		rs, err := session.NewRedisStore(cfg.Session.RedisURL, cfg.Session.Key, 0)
		if err != nil {
			slog.Error("session store error", "err", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
	default:
		store = session.NewFileStore(cfg.Session.Path)
	}

	// --- Gateway client and components ---
	gw := gateway.New(cfg.Gateway.URL, cfg.Gateway.Timeout, store)
	svc := identity.New(gw, store)
	a := &app{svc: svc, guard: guard.New(svc), engine: orders.NewEngine(gw), gw: gw}

	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		if errors.Is(err, identity.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, "Your session has expired. Please log in again.")
		} else {
			slog.Error("session load error", "err", err)
			os.Exit(1)
		}
	}
	svc.StartExpiryWatcher(ctx, cfg.Session.WatcherInterval)
	if p := svc.Current(); p != nil {
		ctx = identity.WithPrincipal(ctx, p)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.cmdLogin(ctx, args)
	case "register":
		return a.cmdRegister(ctx, args)
	case "logout":
		a.svc.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	case "whoami":
		return a.cmdWhoami()
	case "orders":
		return a.cmdOrders(ctx, args)
	case "admin":
		return a.cmdAdmin(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// requireCap routes the command through the guard the way a page
// navigation would be.
func (a *app) requireCap(cap identity.Capability) error {
	switch d := a.guard.Authorize(cap); d.Kind {
	case guard.Allow:
		return nil
	case guard.Pending:
		return errors.New("still loading, try again")
	case guard.RedirectLogin:
		return fmt.Errorf("%w: log in first (marketctl login)", models.ErrNoSession)
	default:
		return fmt.Errorf("you do not have permission for this; go back to %s", d.Target)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := a.svc.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (%s)\n", p.Name, p.Role)
	if p.Role == models.RoleEnterprise && p.EnterpriseStatus != models.EnterpriseApproved {
		fmt.Println("Your enterprise account is pending admin approval.")
	}
	fmt.Println("Start at:", identity.HomeRoute(p))
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	role := fs.String("role", "buyer", "account role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, msg, err := a.svc.Register(ctx, gateway.RegisterInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Role:     models.Role(*role),
	})
	if err != nil {
		return err
	}
	if msg != "" {
		fmt.Println(msg)
	}
	if p != nil {
		fmt.Printf("Registered and logged in as %s (%s)\n", p.Name, p.Role)
	}
	return nil
}

func (a *app) cmdWhoami() error {
	p := a.svc.Current()
	if p == nil {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("%s <%s> role=%s", p.Name, p.Email, p.Role)
	if p.Role == models.RoleEnterprise {
		fmt.Printf(" enterpriseStatus=%s", p.EnterpriseStatus)
	}
	if p.IsBlocked {
		fmt.Print(" BLOCKED")
	}
	if !p.TokenExpiry.IsZero() {
		fmt.Printf(" tokenExpiry=%s", p.TokenExpiry.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	return nil
}

func (a *app) cmdOrders(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("orders: missing subcommand")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return a.cmdOrdersList(ctx, rest)
	case "create":
		return a.cmdOrdersCreate(ctx, rest)
	case "approve":
		return a.cmdTransition(ctx, rest, models.OrderApproved, true)
	case "reject":
		return a.cmdTransition(ctx, rest, models.OrderRejected, false)
	case "ship":
		return a.cmdTransition(ctx, rest, models.OrderShipped, false)
	case "deliver":
		return a.cmdTransition(ctx, rest, models.OrderDelivered, false)
	case "cancel":
		return a.cmdTransition(ctx, rest, models.OrderCancelled, false)
	default:
		return fmt.Errorf("orders: unknown subcommand %q", sub)
	}
}

// ordersCap picks the order-listing capability matching the caller's
// role, the way the role-specific pages are routed.
func (a *app) ordersCap() identity.Capability {
	p := a.svc.Current()
	if p == nil {
		return identity.CapBuyerOrders
	}
	switch p.Role {
	case models.RoleAdmin:
		return identity.CapAdminOrders
	case models.RoleEnterprise:
		return identity.CapEnterpriseOrders
	default:
		return identity.CapBuyerOrders
	}
}

func (a *app) cmdOrdersList(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("orders list", pflag.ContinueOnError)
	buyer := fs.String("buyer", "", "admin filter: buyer id")
	enterprise := fs.String("enterprise", "", "admin filter: enterprise id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireCap(a.ordersCap()); err != nil {
		return err
	}

	var (
		list []models.Order
		err  error
	)
	switch a.svc.Current().Role {
	case models.RoleAdmin:
		list, err = a.engine.ListAll(ctx, *buyer, *enterprise)
	case models.RoleEnterprise:
		list, err = a.engine.ListEnterprise(ctx)
	default:
		list, err = a.engine.ListMine(ctx)
	}
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No orders found.")
		return nil
	}
	for _, o := range list {
		fmt.Printf("%s  %-10s  $%.2f  %s  items=%d\n",
			o.ID, o.Status, o.TotalAmount, o.OrderDate.Format("2006-01-02"), len(o.Items))
		for _, it := range o.Items {
			wh := it.AssignedWarehouse
			if wh == "" {
				wh = "-"
			}
			fmt.Printf("    %s  x%d @ $%.2f  warehouse=%s\n", it.Name, it.Quantity, it.PriceAtOrder, wh)
		}
	}
	return nil
}

func (a *app) cmdOrdersCreate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("orders create", pflag.ContinueOnError)
	specs := fs.StringArray("item", nil, "productID:qty:price[:name]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireCap(identity.CapBuyerProducts); err != nil {
		return err
	}
	items, err := parseItems(*specs)
	if err != nil {
		return err
	}
	order, err := a.engine.Place(ctx, items)
	if err != nil {
		return err
	}
	fmt.Printf("Order %s placed, total $%.2f\n", order.ID, order.TotalAmount)
	return nil
}

func (a *app) cmdTransition(ctx context.Context, args []string, target models.OrderStatus, withWarehouses bool) error {
	fs := pflag.NewFlagSet("orders "+string(target), pflag.ContinueOnError)
	var warehouses *[]string
	if withWarehouses {
		warehouses = fs.StringArray("warehouse", nil, "itemID=warehouseName")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one order id")
	}
	if err := a.requireCap(a.ordersCap()); err != nil {
		return err
	}

	order, err := a.findOrder(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	assignments := map[string]string{}
	if warehouses != nil {
		for _, spec := range *warehouses {
			id, name, ok := strings.Cut(spec, "=")
			if !ok {
				return fmt.Errorf("bad --warehouse %q, want itemID=name", spec)
			}
			assignments[id] = name
		}
	}
	updated, err := a.engine.ProposeTransition(ctx, a.svc.Current(), order, target, assignments)
	if err != nil {
		return err
	}
	fmt.Printf("Order %s is now %s\n", updated.ID, updated.Status)
	return nil
}

func (a *app) findOrder(ctx context.Context, id string) (models.Order, error) {
	var (
		list []models.Order
		err  error
	)
	switch a.svc.Current().Role {
	case models.RoleAdmin:
		list, err = a.engine.ListAll(ctx, "", "")
	case models.RoleEnterprise:
		list, err = a.engine.ListEnterprise(ctx)
	default:
		list, err = a.engine.ListMine(ctx)
	}
	if err != nil {
		return models.Order{}, err
	}
	for _, o := range list {
		if o.ID == id {
			return o, nil
		}
	}
	return models.Order{}, fmt.Errorf("order %s not found", id)
}

func (a *app) cmdAdmin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("admin: missing subcommand")
	}
	if err := a.requireCap(identity.CapAdminUsers); err != nil {
		return err
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "users":
		users, err := a.gw.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			line := fmt.Sprintf("%s  %-10s  %s <%s>", u.ID, u.Role, u.Name, u.Email)
			if u.Role == models.RoleEnterprise {
				line += "  status=" + string(u.EnterpriseStatus)
			}
			if u.IsBlocked {
				line += "  BLOCKED"
			}
			fmt.Println(line)
		}
		return nil
	case "set-status":
		return a.cmdSetStatus(ctx, rest)
	default:
		return fmt.Errorf("admin: unknown subcommand %q", sub)
	}
}

func (a *app) cmdSetStatus(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("admin set-status", pflag.ContinueOnError)
	entStatus := fs.String("enterprise-status", "", "pending|approved|rejected")
	block := fs.Bool("block", false, "block the account")
	unblock := fs.Bool("unblock", false, "unblock the account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one user id")
	}
	userID := fs.Arg(0)

	var patch gateway.UserStatusPatch
	if *entStatus != "" {
		s := models.EnterpriseStatus(*entStatus)
		patch.EnterpriseStatus = &s
	}
	if *block || *unblock {
		b := *block
		patch.IsBlocked = &b
	}
	msg, err := a.gw.UpdateUserStatus(ctx, userID, patch)
	if err != nil {
		return err
	}
	fmt.Println(msg)

	// Admins editing their own record see the change immediately.
	if p := a.svc.Current(); p != nil && p.ID == userID {
		if err := a.svc.MergePatch(ctx, models.PrincipalPatch{
			EnterpriseStatus: patch.EnterpriseStatus,
			IsBlocked:        patch.IsBlocked,
		}); err != nil {
			slog.Warn("failed to refresh own principal", "err", err)
		}
	}
	return nil
}

func parseItems(specs []string) ([]models.OrderItem, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one --item is required")
	}
	items := make([]models.OrderItem, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("bad --item %q, want productID:qty:price[:name]", spec)
		}
		qty, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bad quantity in --item %q", spec)
		}
		price, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("bad price in --item %q", spec)
		}
		it := models.OrderItem{ProductRef: parts[0], Quantity: qty, PriceAtOrder: price}
		if len(parts) > 3 {
			it.Name = parts[3]
		}
		items = append(items, it)
	}
	return items, nil
}
