package handler

import (
	"Clubhouse/internal/api/dto"
	"Clubhouse/internal/api/middleware"
	"Clubhouse/internal/pkg/response"
	"Clubhouse/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService service.IMService
}

func NewIMHandler(imService service.IMService) *IMHandler {
	return &IMHandler{imService: imService}
}

// CreateDirect 发起或获取单聊
func (s *IMHandler) CreateDirect(c *gin.Context) {
	var req dto.CreateDirectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	res, err := s.imService.GetOrCreateDirectConversation(c.Request.Context(), currentUser(c), req.TargetUserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CreateGroup 创建群聊，部分成员邀请失败时仍返回成功
func (s *IMHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	res, err := s.imService.CreateGroupConversation(c.Request.Context(), currentUser(c), req.Name, req.UserIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListConversations 会话列表
func (s *IMHandler) ListConversations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	res, err := s.imService.ListConversations(c.Request.Context(), currentUser(c), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SearchConversations 按名称搜索会话
func (s *IMHandler) SearchConversations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	res, err := s.imService.SearchConversations(c.Request.Context(), currentUser(c), c.Query("q"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) RenameConversation(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RenameConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	res, err := s.imService.RenameConversation(c.Request.Context(), convID, currentUser(c), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) ListParticipants(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := s.imService.ListParticipants(c.Request.Context(), convID, currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// AddParticipant 邀请成员进群
func (s *IMHandler) AddParticipant(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AddParticipantReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	res, err := s.imService.AddParticipantToGroup(c.Request.Context(), convID, req.UserID, currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) RemoveParticipant(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := s.imService.RemoveParticipant(c.Request.Context(), convID, targetID, currentUser(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) LeaveConversation(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.imService.LeaveConversation(c.Request.Context(), convID, currentUser(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SendMessage 发送消息接口
func (s *IMHandler) SendMessage(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	res, err := s.imService.SendMessage(c.Request.Context(), convID, currentUser(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 历史消息，beforeId 为空时从最新开始
func (s *IMHandler) GetMessages(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	beforeID, _ := strconv.ParseUint(c.Query("beforeId"), 10, 64)
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	res, err := s.imService.GetMessages(c.Request.Context(), convID, currentUser(c), beforeID, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) DeleteMessage(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	if err := s.imService.DeleteMessage(c.Request.Context(), convID, msgID, currentUser(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// MarkRead 标记已读，请求体可为空
func (s *IMHandler) MarkRead(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.MarkReadReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, err)
			return
		}
	}

	res, err := s.imService.MarkRead(c.Request.Context(), convID, currentUser(c), req.UpToMessageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetUnread 全局未读数
func (s *IMHandler) GetUnread(c *gin.Context) {
	total, err := s.imService.GetTotalUnread(c.Request.Context(), currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, &dto.UnreadDTO{Total: total})
}

func currentUser(c *gin.Context) uint64 {
	return c.GetUint64(middleware.UserIDKey)
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, service.ErrParamInvalid)
		return 0, false
	}
	return id, true
}
