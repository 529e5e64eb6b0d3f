package handler

import (
	"github.com/gin-gonic/gin"
)

// Generic user-facing messages. Provider and network details stay in the logs.
const (
	msgServerError      = "Erreur serveur. Veuillez réessayer."
	msgInvalidData      = "Données invalides"
	msgReservationSaved = "Réservation enregistrée avec succès"
	msgNotConfigured    = "Service cartographique non configuré"
	msgProviderError    = "Service cartographique indisponible"
)

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
