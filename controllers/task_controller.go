package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// ListTasks handles GET /api/v1/admin/tasks?status=&category=
func ListTasks(c *gin.Context) {
	status := models.TaskStatus(c.DefaultQuery("status", string(models.TaskOpen)))
	if c.Query("status") == "all" {
		status = ""
	}
	category := models.TaskCategory(c.Query("category"))

	tasks, err := services.NewTaskService(config.GetDB()).ListTasks(c.Request.Context(), status, category)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tasks)
}

// CompleteTask handles POST /api/v1/admin/tasks/:id/complete
func CompleteTask(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	task, err := services.NewTaskService(config.GetDB()).CompleteTask(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, task)
}
