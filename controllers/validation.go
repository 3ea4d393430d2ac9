package controllers

import (
	"log"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/pouch-store-api/models"
)

var registerOnce sync.Once

// RegisterValidators adds the store's enum rules to gin's binding validator
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Printf("Binding validator is not go-playground/validator; custom rules not registered")
			return
		}

		rules := map[string]validator.Func{
			"order_status": func(fl validator.FieldLevel) bool {
				return models.OrderStatus(fl.Field().String()).Valid()
			},
			"payment_method": func(fl validator.FieldLevel) bool {
				return models.PaymentMethod(fl.Field().String()).Valid()
			},
			"user_role": func(fl validator.FieldLevel) bool {
				return models.UserRole(fl.Field().String()).Valid()
			},
			"commission_type": func(fl validator.FieldLevel) bool {
				return models.CommissionType(fl.Field().String()).Valid()
			},
		}
		for tag, fn := range rules {
			if err := v.RegisterValidation(tag, fn); err != nil {
				log.Printf("Failed to register %s validator: %v", tag, err)
			}
		}
	})
}
