package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/models"
)

type statusResponse struct {
	Online           bool                `json:"online"`
	Syncing          bool                `json:"syncing"`
	Pending          map[models.Kind]int `json:"pending"`
	Dead             map[models.Kind]int `json:"dead"`
	PrinterConnected bool                `json:"printer_connected"`
	Printer          string              `json:"printer,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	pending, err := s.deps.Queue.Counts()
	if err != nil {
		writeFailure(c, err)
		return
	}
	dead := make(map[models.Kind]int, len(pending))
	for _, kind := range models.Kinds() {
		recs, err := s.deps.Queue.DeadLetters(kind)
		if err != nil {
			writeFailure(c, err)
			return
		}
		dead[kind] = len(recs)
	}

	resp := statusResponse{
		Online:  s.deps.Probe.IsOnline(),
		Syncing: s.deps.Queue.Syncing(),
		Pending: pending,
		Dead:    dead,
	}
	if s.deps.Printer != nil {
		resp.PrinterConnected = s.deps.Printer.Connected()
		resp.Printer = s.deps.Printer.DeviceName()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSync(c *gin.Context) {
	report, err := s.deps.Queue.SyncOfflineData(c.Request.Context())
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// cartRequest is the body of the checkout and print endpoints.
type cartRequest struct {
	Items       []models.CartLine `json:"items"`
	PaymentMode string            `json:"paymentMode"`
	Print       bool              `json:"print"`
}

// bindCart decodes and validates a cart. It writes the error response itself.
func bindCart(c *gin.Context) (lines []models.CartLine, mode models.PaymentMode, req cartRequest, ok bool) {
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return nil, "", req, false
	}
	lines, err := checkout.Normalize(req.Items)
	if err != nil {
		writeError(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, "", req, false
	}
	mode, err = models.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		writeError(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, "", req, false
	}
	return lines, mode, req, true
}

func (s *Server) handleCheckout(c *gin.Context) {
	lines, mode, req, ok := bindCart(c)
	if !ok {
		return
	}
	res, err := s.deps.Checkout.Checkout(c.Request.Context(), checkout.Order{
		Lines:       lines,
		PaymentMode: mode,
		Print:       req.Print,
	})
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type purchaseRequest struct {
	Type        string  `json:"type"`
	ProductName string  `json:"productName"`
	Weight      float64 `json:"weight"`
	CostPerKg   float64 `json:"costPerKg"`
	TotalCost   float64 `json:"totalCost"`
	Amount      float64 `json:"amount"`
	Note        string  `json:"note"`
}

func (s *Server) handleCreatePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Type == "" {
		req.Type = models.PurchaseStock
	}
	p := models.Purchase{
		UserID:      s.deps.Shop.UserID,
		Type:        req.Type,
		ProductName: req.ProductName,
		Weight:      req.Weight,
		CostPerKg:   req.CostPerKg,
		TotalCost:   req.TotalCost,
		Amount:      req.Amount,
		Note:        req.Note,
		Date:        s.now(),
	}
	if err := p.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	res, err := s.deps.Queue.SaveRecord(c.Request.Context(), models.KindPurchase, p.Payload())
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleHistory(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.deps.Queue.FetchHistory(c.Request.Context(), s.deps.Remote, kind, s.deps.Shop.UserID)
		if err != nil {
			writeFailure(c, err)
			return
		}
		c.JSON(http.StatusOK, h)
	}
}

func (s *Server) handleQueue(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	pending, err := s.deps.Queue.Pending(kind)
	if err != nil {
		writeFailure(c, err)
		return
	}
	dead, err := s.deps.Queue.DeadLetters(kind)
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "dead": dead})
}

func (s *Server) handlePrinterConnect(c *gin.Context) {
	if s.deps.Printer == nil {
		writeFailure(c, checkout.ErrNoPrinter)
		return
	}
	if err := s.deps.Printer.Connect(c.Request.Context()); err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "device": s.deps.Printer.DeviceName()})
}

func (s *Server) handlePrintKitchenTicket(c *gin.Context) {
	lines, _, _, ok := bindCart(c)
	if !ok {
		return
	}
	if err := s.deps.Checkout.KitchenTicket(c.Request.Context(), lines); err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printed": true, "message": checkout.MsgKitchenPrinted})
}

func (s *Server) handlePrintBill(c *gin.Context) {
	lines, mode, _, ok := bindCart(c)
	if !ok {
		return
	}
	if err := s.deps.Checkout.Bill(c.Request.Context(), lines, mode); err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printed": true})
}

func (s *Server) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now()
}
