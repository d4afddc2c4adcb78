package handler

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"needle-api/internal/application/chat"
	"needle-api/internal/domain/repository"
	"needle-api/internal/interfaces/http/dto"
)

// ChatHandler RAG 对话处理器
type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// CreateSession 新建会话
// @Summary 新建对话会话
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.CreateSessionRequest false "会话标题"
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/sessions [post]
func (h *ChatHandler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSessionRequest
	// 请求体可为空，标题可选
	_ = c.ShouldBindJSON(&req)

	session, err := h.svc.CreateSession(ctx, req.Title)
	if err != nil {
		writeAppError(ctx, c, err, "failed to create session")
		return
	}

	dto.Created(c, dto.ToSessionResponse(session))
}

// ListSessions 分页列出会话
// @Summary 列出对话会话
// @Tags Chat
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.SessionListResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/sessions [get]
func (h *ChatHandler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	page := dto.BindPage(c)

	result, err := h.svc.ListSessions(ctx, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		writeAppError(ctx, c, err, "failed to list sessions")
		return
	}

	resp := &dto.SessionListResponse{Sessions: make([]*dto.SessionResponse, 0, len(result.Items))}
	for _, s := range result.Items {
		resp.Sessions = append(resp.Sessions, dto.ToSessionResponse(s))
	}
	dto.SuccessWithPage(c, resp, dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// GetSession 查询会话
// @Summary 查询对话会话
// @Tags Chat
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [get]
func (h *ChatHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.svc.GetSession(ctx, dto.BindSessionID(c))
	if err != nil {
		writeAppError(ctx, c, err, "failed to load session")
		return
	}

	dto.Success(c, dto.ToSessionResponse(session))
}

// DeleteSession 删除会话
// @Summary 删除对话会话
// @Tags Chat
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [delete]
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.svc.DeleteSession(ctx, dto.BindSessionID(c)); err != nil {
		writeAppError(ctx, c, err, "failed to delete session")
		return
	}

	dto.NoContent(c)
}

// ListTurns 分页列出会话消息
// @Summary 列出会话消息
// @Tags Chat
// @Produce json
// @Param sid path string true "会话 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.TurnListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/turns [get]
func (h *ChatHandler) ListTurns(c *gin.Context) {
	ctx := c.Request.Context()
	page := dto.BindPage(c)

	result, err := h.svc.ListTurns(ctx, dto.BindSessionID(c), repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		writeAppError(ctx, c, err, "failed to list turns")
		return
	}

	resp := &dto.TurnListResponse{Turns: make([]*dto.TurnResponse, 0, len(result.Items))}
	for _, t := range result.Items {
		resp.Turns = append(resp.Turns, dto.ToTurnResponse(t))
	}
	dto.SuccessWithPage(c, resp, dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// SendMessage 同步发送一条消息并返回完整回答
// @Summary 发送消息
// @Tags Chat
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.SendMessageRequest true "用户消息"
// @Success 200 {object} dto.Response[dto.SendMessageResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.svc.SendMessage(ctx, &chat.TurnInput{
		SessionID: dto.BindSessionID(c),
		Message:   req.Message,
		Provider:  req.Provider,
	})
	if err != nil {
		writeAppError(ctx, c, err, "chat turn failed")
		return
	}

	resp := &dto.SendMessageResponse{Answer: out.Answer, Citations: out.Citations}
	if out.Turn != nil {
		resp.TurnID = out.Turn.ID
	}
	dto.Success(c, resp)
}

// StreamMessage SSE 流式发送一条消息
// @Summary 流式发送消息
// @Description 以 text/event-stream 返回 content/done/error 事件
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Param body body dto.SendMessageRequest true "用户消息"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/messages/stream [post]
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	turn, err := h.svc.StartStream(ctx, &chat.TurnInput{
		SessionID: dto.BindSessionID(c),
		Message:   req.Message,
		Provider:  req.Provider,
	})
	if err != nil {
		writeAppError(ctx, c, err, "failed to start chat stream")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	contentCh := make(chan string, 16)
	doneCh := make(chan *dto.SendMessageResponse, 1)
	errCh := make(chan error, 1)

	// 落库不能随客户端断开一起被取消
	go pumpStream(ctx, context.WithoutCancel(ctx), turn, contentCh, doneCh, errCh)

	index := 0
	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-contentCh:
			if !ok {
				return false
			}
			c.SSEvent("content", gin.H{"chunk": chunk, "index": index})
			index++
			return true

		case resp, ok := <-doneCh:
			if !ok {
				return false
			}
			c.SSEvent("done", gin.H{
				"answer":    resp.Answer,
				"citations": resp.Citations,
				"turn_id":   resp.TurnID,
			})
			return false

		case streamErr, ok := <-errCh:
			if ok && streamErr != nil {
				c.SSEvent("error", gin.H{"message": streamErr.Error()})
			}
			return false

		case <-ctx.Done():
			return false
		}
	})
}

// pumpStream 消费模型输出流并写入 SSE 通道
// 客户端断开后 contentCh 不再有消费者，发送必须同时监听 ctx.Done，
// 否则生产协程会永远阻塞在写通道上；此时落一条错误消息后退出
func pumpStream(ctx, persistCtx context.Context, turn *chat.StreamTurn,
	contentCh chan<- string, doneCh chan<- *dto.SendMessageResponse, errCh chan<- error) {
	defer close(contentCh)
	defer close(doneCh)
	defer close(errCh)
	defer turn.Reader.Close()

	var answer strings.Builder
	for {
		msg, recvErr := turn.Reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			turn.Complete(persistCtx, "", recvErr)
			errCh <- recvErr
			return
		}
		if msg.Content == "" {
			continue
		}
		answer.WriteString(msg.Content)
		select {
		case contentCh <- msg.Content:
		case <-ctx.Done():
			turn.Complete(persistCtx, "", ctx.Err())
			return
		}
	}

	persisted := turn.Complete(persistCtx, answer.String(), nil)
	resp := &dto.SendMessageResponse{
		Answer:    strings.TrimSpace(answer.String()),
		Citations: turn.Citations,
	}
	if persisted != nil {
		resp.TurnID = persisted.ID
	}
	doneCh <- resp
}
