package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	appcart "github.com/Zhima-Mochi/snackshop/internal/application/cart"
	appcatalog "github.com/Zhima-Mochi/snackshop/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/snackshop/internal/application/order"
	apppay "github.com/Zhima-Mochi/snackshop/internal/application/payment"
	domcatalog "github.com/Zhima-Mochi/snackshop/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/snackshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/snackshop/internal/domain/payment"
	"github.com/Zhima-Mochi/snackshop/internal/infrastructure/notice"
	"github.com/Zhima-Mochi/snackshop/internal/pkg/apperr"
)

const helpText = `commands:
  menu                              list snacks
  add <id> [qty]                    add snacks to the cart
  set <id> <qty>                    set a quantity (0 removes)
  cart                              show the cart
  checkout                          submit the cart as an order
  pay pix                           pay the order by pix
  pay card <number> <mm/yy> <cvv> <name>
  dismiss                           close the payment
  orders                            order history
  notice [dismiss]                  show or hide the current notice
  quit`

var errQuit = errors.New("quit")

// shell is the line-oriented checkout front end. Session updates and notices arrive on other
// goroutines, so every write goes through say.
type shell struct {
	catalog *appcatalog.Service
	cart    *appcart.Store
	submit  *apporder.SubmitOrderUseCase
	history *apporder.ListOrdersUseCase
	orch    *apppay.Orchestrator
	notices *notice.Board

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	menu    domcatalog.Catalog
	pending *domorder.Order
}

func (s *shell) say(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

// run reads commands from in until quit, EOF or ctx ends.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.loadMenu(ctx)
	s.say("%s", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				s.say("error: %s", describe(err))
				if apperr.Is(err, apperr.KindConnectivity) {
					s.say("the shop did not answer; try again in a moment")
				}
			}
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "help", "?":
		s.say("%s", helpText)
	case "menu":
		s.loadMenu(ctx)
	case "add":
		return s.add(args[1:])
	case "set":
		return s.set(args[1:])
	case "cart":
		s.showCart()
	case "checkout":
		return s.checkout(ctx)
	case "pay":
		return s.pay(ctx, args[1:])
	case "dismiss":
		s.orch.Dismiss()
		s.say("payment closed")
	case "orders":
		return s.showOrders(ctx)
	case "notice":
		s.notice(args[1:])
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return nil
}

func (s *shell) loadMenu(ctx context.Context) {
	menu := s.catalog.Load(ctx)
	s.mu.Lock()
	s.menu = menu
	s.mu.Unlock()

	if menu.Len() == 0 {
		s.say("menu unavailable")
		return
	}
	for _, it := range menu.Items() {
		s.say("  %-3s %-24s R$ %s", it.ID, it.Name, it.UnitPrice.StringFixed(2))
	}
}

func (s *shell) add(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: add <id> [qty]")
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		qty = n
	}
	id := domcatalog.ItemID(args[0])
	if err := s.requireItem(id); err != nil {
		return err
	}
	s.cart.SetQuantity(id, s.cart.Quantity(id)+qty)
	return nil
}

func (s *shell) set(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set <id> <qty>")
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid quantity %q", args[1])
	}
	id := domcatalog.ItemID(args[0])
	if qty > 0 {
		if err := s.requireItem(id); err != nil {
			return err
		}
	}
	s.cart.SetQuantity(id, qty)
	return nil
}

func (s *shell) requireItem(id domcatalog.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menu.Get(id); !ok {
		return fmt.Errorf("no snack %q on the menu", id)
	}
	return nil
}

func (s *shell) showCart() {
	s.mu.Lock()
	menu := s.menu
	s.mu.Unlock()

	if s.cart.IsEmpty() {
		s.say("cart is empty")
		return
	}
	lines := s.cart.Lines()
	for _, l := range lines {
		name := string(l.ItemID)
		if it, ok := menu.Get(l.ItemID); ok {
			name = it.Name
		}
		s.say("  %dx %s", l.Quantity, name)
	}
	s.say("  total R$ %s", s.cart.ComputeTotal(menu).StringFixed(2))
}

func (s *shell) checkout(ctx context.Context) error {
	res, err := s.submit.Execute(ctx, apporder.SubmitOrderInput{Lines: s.cart.Lines()})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = res.Order.Clone()
	s.mu.Unlock()
	s.say("order #%s created, total R$ %s; pay with: pay pix | pay card ...", res.Order.ID, res.Order.TotalAmount.StringFixed(2))
	return nil
}

func (s *shell) pay(ctx context.Context, args []string) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return errors.New("no order to pay, run checkout first")
	}
	if len(args) == 0 {
		return errors.New("usage: pay pix | pay card <number> <mm/yy> <cvv> <name>")
	}

	var (
		method dompay.Method
		card   *dompay.CardData
	)
	switch args[0] {
	case "pix":
		method = dompay.MethodInstantTransfer
	case "card":
		method = dompay.MethodCard
		if len(args) < 5 {
			return errors.New("usage: pay card <number> <mm/yy> <cvv> <name>")
		}
		card = &dompay.CardData{
			Number: args[1],
			Expiry: args[2],
			CVV:    args[3],
			Holder: strings.Join(args[4:], " "),
		}
	default:
		return fmt.Errorf("unknown payment method %q", args[0])
	}

	_, err := s.orch.StartSession(ctx, *pending, method, card)
	switch {
	case errors.Is(err, apppay.ErrOrderPaid):
		return errors.New("this order is already paid")
	case errors.Is(err, apppay.ErrSessionActive):
		return errors.New("a payment is already in progress, dismiss it first")
	}
	return err
}

func (s *shell) notice(args []string) {
	if len(args) > 0 && args[0] == "dismiss" {
		s.notices.Dismiss()
	}
	if n, ok := s.notices.Current(); ok {
		s.say("*** %s ***", n.Message)
		return
	}
	s.say("no notice")
}

func (s *shell) showOrders(ctx context.Context) error {
	orders, err := s.history.Execute(ctx, struct{}{})
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		s.say("no orders yet")
		return nil
	}
	for _, o := range orders {
		s.say("  #%-4s R$ %-8s %s", o.ID, o.TotalAmount.StringFixed(2), o.Status)
	}
	return nil
}

// watchSessions prints every session update until ctx ends.
func (s *shell) watchSessions(ctx context.Context) error {
	for sess := range s.orch.Observe(ctx) {
		switch sess.State {
		case dompay.StatePixPending:
			s.say("pix: scan or paste the code below (expires %s)\n  %s",
				sess.Payload.ExpiresAt.Local().Format("15:04"), sess.Payload.QRCode)
		case dompay.StateCardProcessing:
			s.say("card: processing")
		case dompay.StateSettled, dompay.StateApproved:
			s.mu.Lock()
			if s.pending != nil && s.pending.ID == sess.OrderID {
				s.pending = nil
			}
			s.mu.Unlock()
			s.say("payment %s", sess.State)
		case dompay.StateDeclined, dompay.StateExpired:
			s.say("payment %s: %s", sess.State, sess.Message)
		case dompay.StateSelectingMethod:
			if sess.Err != "" {
				s.say("payment failed: %s", sess.Err)
			}
		}
	}
	return nil
}

// describe prefers the user-facing text of application errors.
func describe(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
