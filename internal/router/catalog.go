package router

import (
	"errors"
	"net/http"

	"menu_digital/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// listCategories 分类列表。
func listCategories(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Category
		if err := db.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": list})
	}
}

// createCategory 新建分类。
func createCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": err.Error()})
			return
		}
		cat := &model.Category{Name: req.Name}
		if err := db.Create(cat).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": "OK", "data": cat})
	}
}

// deleteCategory 删除分类（软删）。
func deleteCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid category id"})
			return
		}
		if err := db.Delete(&model.Category{}, id).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK"})
	}
}

// listFoods 菜品列表，支持按分类过滤。
func listFoods(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db
		if category := c.Query("category_id"); category != "" {
			q = q.Where("category_id = ?", category)
		}
		var list []model.Food
		if err := q.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": list})
	}
}

// createFood 上架菜品。
func createFood(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
			Price       int64  `json:"price" binding:"required,min=1"`
			CategoryID  *uint  `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": err.Error()})
			return
		}
		f := &model.Food{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			CategoryID:  req.CategoryID,
		}
		if err := db.Create(f).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": "OK", "data": f})
	}
}

// updateFood 修改菜品信息 / 价格。价格只影响之后的订单，
// 已落库的行项目价格是下单时的快照。
func updateFood(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid food id"})
			return
		}

		var f model.Food
		if err := db.First(&f, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": "FOOD_NOT_FOUND", "msg": "food not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}

		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Price       int64  `json:"price"`
			CategoryID  *uint  `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": err.Error()})
			return
		}

		values := map[string]any{}
		if req.Name != "" {
			values["name"] = req.Name
		}
		if req.Description != "" {
			values["description"] = req.Description
		}
		if req.Price > 0 {
			values["price"] = req.Price
		}
		if req.CategoryID != nil {
			values["category_id"] = *req.CategoryID
		}
		if len(values) > 0 {
			if err := db.Model(&f).Updates(values).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK", "data": f})
	}
}

// deleteFood 下架菜品（软删）。
func deleteFood(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "msg": "invalid food id"})
			return
		}
		if err := db.Delete(&model.Food{}, id).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "OK"})
	}
}
