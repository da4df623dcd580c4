// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/services/license"
)

type ProductsHandler struct {
	licenseService *license.Service
}

func NewProductsHandler(licenseService *license.Service) *ProductsHandler {
	return &ProductsHandler{licenseService: licenseService}
}

// CreateProductRequest represents a product creation request
type CreateProductRequest struct {
	Name string `json:"name"`
}

func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.licenseService.Products(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list products")
		RespondError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}

	RespondJSON(w, http.StatusOK, products)
}

func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.Name == "" {
		RespondError(w, http.StatusBadRequest, "Product name is required")
		return
	}

	product, err := h.licenseService.CreateProduct(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, models.ErrProductAlreadyExists) {
			RespondError(w, http.StatusConflict, "Product already exists")
			return
		}
		log.Error().Err(err).Msg("Failed to create product")
		RespondError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	RespondJSON(w, http.StatusCreated, product)
}

func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID, ok := ParseStringParam(w, r, "productID", "product ID")
	if !ok {
		return
	}

	if err := h.licenseService.DeleteProduct(r.Context(), productID); err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			RespondError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Msg("Failed to delete product")
		RespondError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}
