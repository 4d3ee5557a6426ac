package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
	"chronos-api/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamController pushes movement snapshots over WebSocket
type StreamController struct {
	service  LedgerService
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewStreamController accepts upgrades from allowedOrigins; an empty list
// or "*" accepts any origin.
func NewStreamController(service LedgerService, allowedOrigins []string, logger *logrus.Logger) *StreamController {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &StreamController{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
		},
	}
}

type subscribeFunc func(ctx context.Context, bancoID string, callback func([]*models.Movimiento)) (realtime.Unsubscribe, error)

// StreamIngresos streams the incomes of a banco
func (c *StreamController) StreamIngresos(ctx *gin.Context) {
	c.stream(ctx, models.TipoIngreso, c.service.SubscribeToIngresos)
}

// StreamGastos streams the expenses of a banco
func (c *StreamController) StreamGastos(ctx *gin.Context) {
	c.stream(ctx, models.TipoGasto, c.service.SubscribeToGastos)
}

// streamMessage is one pushed snapshot
type streamMessage struct {
	BancoID     string                `json:"bancoId"`
	Tipo        models.TipoMovimiento `json:"tipo"`
	Movimientos []*models.Movimiento  `json:"movimientos"`
	EnviadoEn   time.Time             `json:"enviadoEn"`
}

func (c *StreamController) stream(ctx *gin.Context, tipo models.TipoMovimiento, subscribe subscribeFunc) {
	bancoID := ctx.Param("id")

	banco, err := c.service.GetBanco(ctx.Request.Context(), bancoID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if banco == nil {
		respondError(ctx, models.NewBancoNotFound(bancoID))
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Upgrade already answered the client.
		c.logger.WithError(err).WithField("banco_id", bancoID).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := c.logger.WithFields(logrus.Fields{"banco_id": bancoID, "tipo": tipo, "remote": conn.RemoteAddr().String()})

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Holds only the newest snapshot: a slow client skips intermediate ones.
	latest := make(chan []*models.Movimiento, 1)
	unsubscribe, err := subscribe(streamCtx, bancoID, func(movs []*models.Movimiento) {
		select {
		case <-latest:
		default:
		}
		latest <- movs
	})
	if err != nil {
		log.WithError(err).Error("Failed to subscribe")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(writeWait))
		return
	}
	defer unsubscribe()

	log.Info("Stream opened")
	go c.readPump(conn, cancel)
	c.writePump(streamCtx, conn, bancoID, tipo, latest, log)
	log.Info("Stream closed")
}

// readPump discards client messages and cancels the stream when the client
// goes away.
func (c *StreamController) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *StreamController) writePump(ctx context.Context, conn *websocket.Conn, bancoID string, tipo models.TipoMovimiento, latest <-chan []*models.Movimiento, log *logrus.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case movs := <-latest:
			if movs == nil {
				movs = []*models.Movimiento{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteJSON(streamMessage{
				BancoID:     bancoID,
				Tipo:        tipo,
				Movimientos: movs,
				EnviadoEn:   time.Now().UTC(),
			})
			if err != nil {
				log.WithError(err).Debug("Write failed")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
