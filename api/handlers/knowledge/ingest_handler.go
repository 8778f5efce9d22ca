package knowledge

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	response "backend/api/handlers/common"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/progress"
	"backend/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestHandler 知识库导入处理器
type IngestHandler struct {
	queue   queue.Client
	tracker *progress.Tracker
	tempDir string // 上传文件暂存目录，空则使用系统临时目录
}

// NewIngestHandler 创建导入处理器
func NewIngestHandler(queueClient queue.Client, tracker *progress.Tracker, tempDir string) *IngestHandler {
	return &IngestHandler{
		queue:   queueClient,
		tracker: tracker,
		tempDir: tempDir,
	}
}

// Ingest 上传 CSV 并启动导入任务
// 同步响应只确认任务受理，导入结果通过进度端点轮询
// @Summary 导入知识库 CSV
// @Tags KnowledgeBase
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV 文件"
// @Param collectionName formData string true "目标集合"
// @Param fresh formData string false "是否先清空集合 (true/false)"
// @Success 202 {object} IngestAcceptedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/knowledge-base/ingest [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	collectionName := strings.TrimSpace(c.PostForm("collectionName"))
	if collectionName == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "缺少 collectionName"})
		return
	}
	fresh := c.PostForm("fresh") == "true"

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "未找到上传文件: " + err.Error()})
		return
	}
	defer file.Close()

	// 暂存到临时文件，导入流水线负责删除
	tmpPath, err := h.saveTemp(file, header.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "保存上传文件失败: " + err.Error()})
		return
	}

	jobID := uuid.New().String()

	err = h.queue.EnqueueIngestCSV(tasks.IngestCSVPayload{
		FilePath:       tmpPath,
		CollectionName: collectionName,
		Fresh:          fresh,
		JobID:          jobID,
	})
	if err != nil {
		// 任务未入队，临时文件不会有人清理
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			logger.Warn("临时文件删除失败", zap.String("path", tmpPath), zap.Error(rmErr))
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "提交导入任务失败: " + err.Error()})
		return
	}

	logger.Info("导入任务已受理",
		zap.String("job_id", jobID),
		zap.String("collection", collectionName),
		zap.String("filename", header.Filename),
		zap.Bool("fresh", fresh),
	)

	c.JSON(http.StatusAccepted, IngestAcceptedResponse{
		Success: true,
		JobID:   jobID,
		Message: "导入任务已受理",
	})
}

// Progress 查询导入任务进度
// @Summary 查询导入进度
// @Tags KnowledgeBase
// @Produce json
// @Param jobId path string true "任务 ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/knowledge-base/ingest/progress/{jobId} [get]
func (h *IngestHandler) Progress(c *gin.Context) {
	jobID := c.Param("jobId")

	job := h.tracker.Get(jobID)
	if job == nil {
		// 从未存在和已过期不可区分，统一返回 404
		c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: "Job not found or expired"})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: job})
}

// saveTemp 将上传内容写入临时文件，返回文件路径
func (h *IngestHandler) saveTemp(src io.Reader, filename string) (string, error) {
	dir := h.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".csv"
	}
	tmp, err := os.CreateTemp(dir, "kb-ingest-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
