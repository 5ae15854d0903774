// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/model/rest"
)

// HandleErrors renders errors pushed onto the gin context as the JSON
// envelope. The transport status stays 200; the envelope meta carries the
// failure code, so clients switch on one field for both transports.
func HandleErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}

		// handlers abort on the first failure; trailing errors are kept in
		// the log only
		for _, trailing := range c.Errors[1:] {
			log.Errorf("request %s carried a trailing error: %v", c.Request.URL.Path, trailing.Err)
		}

		first := c.Errors[0].Err
		if coded, ok := first.(*errors.Error); ok {
			log.Errorf("request %s (%s) failed with code %d: %s, cause %+v",
				c.Request.URL.Path, c.FullPath(), coded.Code(), coded.Message(), coded.Unwrap())
			c.AbortWithStatusJSON(http.StatusOK, rest.ErrorResp(c.Request.Context(), coded.Code(), coded.Message(), nil))
			return
		}

		log.Errorf("request %s (%s) failed without a code: %+v", c.Request.URL.Path, c.FullPath(), first)
		c.AbortWithStatusJSON(http.StatusOK, rest.ErrorResp(c.Request.Context(), errors.InternalError, "Unknown error", nil))
	}
}
