package handler

import (
	"net/http"
	"time"

	"cardlink/backend/internal/auth"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/models"
	"cardlink/backend/internal/relationship"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// region --- DTOs ---

type CreateRequestInput struct {
	ReceiverID string `json:"receiver_id" binding:"required" example:"7f0c9a8e-user"`
}

type ConnectionRequestResponse struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	State      string     `json:"state" example:"pending"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func newConnectionRequestResponse(r models.ConnectionRequest) ConnectionRequestResponse {
	return ConnectionRequestResponse{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		State:      string(r.State),
		AcceptedAt: r.AcceptedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type ConnectionResponse struct {
	PeerID     string    `json:"peer_id"`
	RequestID  string    `json:"request_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type StatusResponse struct {
	State     string `json:"state" example:"pending"`
	Direction string `json:"direction,omitempty" example:"outgoing"`
	RequestID string `json:"request_id,omitempty"`
}

// PaginatedRequestResponse defines the structure for a paginated list of requests.
type PaginatedRequestResponse struct {
	Data []ConnectionRequestResponse `json:"data"`
	Meta PaginationMeta              `json:"meta"`
}

// PaginatedConnectionResponse defines the structure for a paginated list of connections.
type PaginatedConnectionResponse struct {
	Data []ConnectionResponse `json:"data"`
	Meta PaginationMeta       `json:"meta"`
}

type PeersResponse struct {
	Peers []string `json:"peers"`
}

type CheckResponse struct {
	Connected bool `json:"connected"`
}

type MessageResponse struct {
	Message string `json:"message" example:"Connection removed"`
}

// endregion

// ConnectionHandler exposes the relationship service over HTTP.
type ConnectionHandler struct {
	svc *relationship.Service
	log *zap.Logger
}

func NewConnectionHandler(svc *relationship.Service, log *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{svc: svc, log: log}
}

// RegisterRoutes mounts the connection routes. The group must already run AuthMiddleware.
func (h *ConnectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	connections := rg.Group("/connections")
	{
		connections.GET("", h.ListConnections)
		connections.DELETE("/:id", h.Dissolve)
		connections.GET("/peers", h.ListPeers)
		connections.GET("/status/:userID", h.Status)
		connections.GET("/check/:userID", h.Check)

		requests := connections.Group("/requests")
		{
			requests.POST("", h.SendRequest)
			requests.GET("", h.ListRequests)
			requests.POST("/:id/:action", h.AnswerRequest)
			requests.DELETE("/:id", h.CancelRequest)
		}
	}
}

// region --- Request Handlers ---

// SendRequest godoc
// @Summary      Send a connection request
// @Description  Sends a connection request to another user. A previously rejected request between the two users is reused.
// @Tags         connections
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body      CreateRequestInput  true  "Receiver"
// @Success      201     {object}  ConnectionRequestResponse
// @Failure      400     {object}  ErrorResponse
// @Failure      401     {object}  ErrorResponse
// @Failure      409     {object}  ErrorResponse "A request between the users already exists"
// @Router       /connections/requests [post]
func (h *ConnectionHandler) SendRequest(c *gin.Context) {
	var input CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: relationship.KindInvalidArgument.String()})
		return
	}

	req, err := h.svc.Create(c.Request.Context(), auth.UserID(c), input.ReceiverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newConnectionRequestResponse(*req))
}

// AnswerRequest godoc
// @Summary      Accept or reject a connection request
// @Description  The receiver answers a pending request. Accepting connects both users; after a reject the sender may send it again.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Request ID"
// @Param        action  path      string  true  "Answer" Enums(accept, reject)
// @Success      200     {object}  ConnectionRequestResponse
// @Failure      400     {object}  ErrorResponse "Unknown action"
// @Failure      403     {object}  ErrorResponse "Only the receiver may answer"
// @Failure      404     {object}  ErrorResponse
// @Failure      409     {object}  ErrorResponse "Request is not pending"
// @Router       /connections/requests/{id}/{action} [post]
func (h *ConnectionHandler) AnswerRequest(c *gin.Context) {
	action, err := relationship.ParseAction(c.Param("action"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	req, err := h.svc.Transition(c.Request.Context(), c.Param("id"), auth.UserID(c), action)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newConnectionRequestResponse(*req))
}

// CancelRequest godoc
// @Summary      Cancel a sent request
// @Description  The sender withdraws a pending request.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  MessageResponse
// @Failure      403  {object}  ErrorResponse "Only the sender may cancel"
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Request is not pending"
// @Router       /connections/requests/{id} [delete]
func (h *ConnectionHandler) CancelRequest(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id"), auth.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Request cancelled"})
}

// ListRequests godoc
// @Summary      List pending requests
// @Description  Lists pending requests the current user received or sent, newest first.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        direction query     string  false  "received or sent" default(received)
// @Param        page      query     int     false  "Page number" default(1)
// @Param        limit     query     int     false  "Items per page" default(10)
// @Success      200       {object}  PaginatedRequestResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /connections/requests [get]
func (h *ConnectionHandler) ListRequests(c *gin.Context) {
	dir, err := ledger.ParseDirection(c.DefaultQuery("direction", string(ledger.DirectionReceived)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: relationship.KindInvalidArgument.String()})
		return
	}
	page, limit := pageParams(c)

	requests, err := h.svc.ListPending(c.Request.Context(), auth.UserID(c), dir)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]ConnectionRequestResponse, 0, len(requests))
	for _, r := range requests {
		out = append(out, newConnectionRequestResponse(r))
	}
	c.JSON(http.StatusOK, Paginate(out, page, limit))
}

// endregion

// region --- Connection Handlers ---

// ListConnections godoc
// @Summary      List connections
// @Description  Lists the current user's accepted connections, most recent first.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number" default(1)
// @Param        limit  query     int  false  "Items per page" default(10)
// @Success      200    {object}  PaginatedConnectionResponse
// @Router       /connections [get]
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	page, limit := pageParams(c)

	peers, err := h.svc.ListAccepted(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]ConnectionResponse, 0, len(peers))
	for _, p := range peers {
		out = append(out, ConnectionResponse{PeerID: p.PeerID, RequestID: p.RequestID, AcceptedAt: p.AcceptedAt})
	}
	c.JSON(http.StatusOK, Paginate(out, page, limit))
}

// Dissolve godoc
// @Summary      Remove a connection
// @Description  Either party ends an accepted connection.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID of the connection"
// @Success      200  {object}  MessageResponse
// @Failure      403  {object}  ErrorResponse "Not a party of the connection"
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Request is not accepted"
// @Router       /connections/{id} [delete]
func (h *ConnectionHandler) Dissolve(c *gin.Context) {
	if err := h.svc.Dissolve(c.Request.Context(), c.Param("id"), auth.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Connection removed"})
}

// Status godoc
// @Summary      Relation status with a user
// @Description  Returns the state between the current user and another user, seen from the current user.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        userID  path      string  true  "Other user ID"
// @Success      200     {object}  StatusResponse
// @Router       /connections/status/{userID} [get]
func (h *ConnectionHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), auth.UserID(c), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{State: st.State, Direction: st.Direction, RequestID: st.RequestID})
}

// ListPeers godoc
// @Summary      List peer IDs
// @Description  Returns the IDs of everyone the current user is connected to, read from the graph cache.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  PeersResponse
// @Router       /connections/peers [get]
func (h *ConnectionHandler) ListPeers(c *gin.Context) {
	peers, err := h.svc.ListPeers(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if peers == nil {
		peers = []string{}
	}
	c.JSON(http.StatusOK, PeersResponse{Peers: peers})
}

// Check godoc
// @Summary      Check a connection
// @Description  Reports whether the current user and another user are connected.
// @Tags         connections
// @Produce      json
// @Security     BearerAuth
// @Param        userID  path      string  true  "Other user ID"
// @Success      200     {object}  CheckResponse
// @Router       /connections/check/{userID} [get]
func (h *ConnectionHandler) Check(c *gin.Context) {
	ok, err := h.svc.Connected(c.Request.Context(), auth.UserID(c), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CheckResponse{Connected: ok})
}

// endregion
