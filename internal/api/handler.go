package api

import (
	"context"
	"time"

	"fund-watch-server/internal/models"
	"fund-watch-server/internal/service"
	"fund-watch-server/internal/trace"
	"fund-watch-server/internal/watchlist"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const exportVersion = 1

// Handler 持有各组件的引用，gin 路由都挂在它的方法上
type Handler struct {
	db        *gorm.DB
	mgr       *watchlist.Manager
	ctrl      *watchlist.Controller
	sched     *watchlist.Scheduler
	fetcher   *service.Fetcher
	jwtSecret []byte
}

func New(db *gorm.DB, mgr *watchlist.Manager, ctrl *watchlist.Controller, sched *watchlist.Scheduler, fetcher *service.Fetcher, jwtSecret []byte) *Handler {
	return &Handler{db: db, mgr: mgr, ctrl: ctrl, sched: sched, fetcher: fetcher, jwtSecret: jwtSecret}
}

// 注册
func (h *Handler) Register(c *gin.Context) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	hashedPwd, _ := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	user := models.User{Username: input.Username, Password: string(hashedPwd)}
	if result := h.db.Create(&user); result.Error != nil {
		c.JSON(500, gin.H{"error": "注册失败"})
		return
	}
	c.JSON(200, gin.H{"message": "注册成功"})
}

// 登录
func (h *Handler) Login(c *gin.Context) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	var user models.User
	if err := h.db.Where("username = ?", input.Username).First(&user).Error; err != nil {
		c.JSON(401, gin.H{"error": "用户不存在"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		c.JSON(401, gin.H{"error": "密码错误"})
		return
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"exp":     time.Now().Add(time.Hour * 24 * 7).Unix(),
	})
	tokenString, _ := token.SignedString(h.jwtSecret)
	c.JSON(200, gin.H{"token": tokenString, "username": user.Username})
}

// AuthMiddleware 校验 Authorization 里的 JWT
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "未登录"})
			return
		}
		token, _ := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return h.jwtSecret, nil
		})
		if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
			c.Set("user_id", uint(claims["user_id"].(float64)))
			c.Next()
		} else {
			c.AbortWithStatusJSON(401, gin.H{"error": "Token 无效"})
		}
	}
}

// ListFunds 当前自选列表和刷新状态
func (h *Handler) ListFunds(c *gin.Context) {
	c.JSON(200, gin.H{
		"funds":      h.mgr.List(),
		"refreshing": h.ctrl.Refreshing(),
		"refreshMs":  h.sched.IntervalMs(),
	})
}

// AddFunds 按代码批量添加，names 是搜索结果里带过来的名称提示
func (h *Handler) AddFunds(c *gin.Context) {
	var input struct {
		Codes []string          `json:"codes"`
		Names map[string]string `json:"names"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || len(input.Codes) == 0 {
		c.JSON(400, gin.H{"error": "缺少基金代码"})
		return
	}
	ctx := trace.WithTraceID(c.Request.Context(), trace.NewTraceID())
	res, err := h.ctrl.AddByCodes(ctx, input.Codes, input.Names)
	if err != nil {
		// 一个都没加进来不算异常，把失败明细带回去就行
		c.JSON(200, gin.H{"message": err.Error(), "added": 0, "failures": res.Failures})
		return
	}
	c.JSON(200, gin.H{"message": "添加成功", "added": res.Added, "failures": res.Failures})
}

// DeleteFund 移除一只基金，代码不存在也返回成功
func (h *Handler) DeleteFund(c *gin.Context) {
	var input struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Code == "" {
		c.JSON(400, gin.H{"error": "缺少基金代码"})
		return
	}
	if _, err := h.mgr.Remove(input.Code); err != nil {
		c.JSON(500, gin.H{"error": "保存失败"})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// Refresh 手动刷新全部自选。已有周期在跑时这里立即返回，效果等同跳过
func (h *Handler) Refresh(c *gin.Context) {
	ctx := trace.WithTraceID(c.Request.Context(), trace.NewTraceID())
	h.ctrl.ManualRefresh(ctx)
	c.JSON(200, gin.H{"funds": h.mgr.List()})
}

// Search 基金模糊搜索
func (h *Handler) Search(c *gin.Context) {
	keyword := c.Query("key")
	if keyword == "" {
		c.JSON(400, gin.H{"error": "missing key"})
		return
	}
	results, err := h.fetcher.SearchFund(c.Request.Context(), keyword)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"data": results})
}

// GetSettings 当前刷新间隔
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(200, gin.H{"refreshMs": h.sched.IntervalMs()})
}

// SaveSettings 更新刷新间隔，低于下限会被拉回下限
func (h *Handler) SaveSettings(c *gin.Context) {
	var input struct {
		RefreshMs int64 `json:"refreshMs"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.RefreshMs <= 0 {
		c.JSON(400, gin.H{"error": "无效的刷新间隔"})
		return
	}
	applied := h.sched.SetIntervalMs(input.RefreshMs)
	c.JSON(200, gin.H{"refreshMs": applied})
}

// Export 导出自选快照
func (h *Handler) Export(c *gin.Context) {
	c.JSON(200, models.ExportPayload{
		Version:    exportVersion,
		Funds:      h.mgr.List(),
		RefreshMs:  h.sched.IntervalMs(),
		ExportedAt: time.Now().Format(time.RFC3339),
	})
}

// Import 导入快照：格式不对整体拒绝，一条都不动；
// 新代码追加到现有列表后面，追加了才触发一轮后台刷新
func (h *Handler) Import(c *gin.Context) {
	var payload models.ExportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(400, gin.H{"error": "导入失败，请检查文件格式"})
		return
	}
	incoming := watchlist.DedupeByCode(payload.Funds)
	appended, err := h.mgr.Append(incoming)
	if err != nil {
		c.JSON(500, gin.H{"error": "保存失败"})
		return
	}
	if payload.RefreshMs >= watchlist.MinRefreshMs {
		h.sched.SetIntervalMs(payload.RefreshMs)
	}
	if appended > 0 {
		// 请求结束 ctx 就没了，后台刷新用独立的
		ctx := trace.WithTraceID(context.Background(), trace.NewTraceID())
		go h.ctrl.Refresh(ctx, h.mgr.Codes())
	}
	c.JSON(200, gin.H{"message": "导入成功", "appended": appended})
}
