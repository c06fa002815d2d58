// Package models defines the core domain models for the pharmacy inventory.
//
// # Models
//
//   - Supplement: a catalog item (name, price, stock, barcode, category, image)
//   - Category: an admin-managed category label
//   - User: an operator account used for sign-in
//
// # Design Principles
//
//  1. Prices are whole IQD amounts; there is no minor unit.
//  2. Quantities and prices are never negative.
//  3. Categories are referenced by label, not by ID, so relabelling is a cascade.
//  4. Images are inline data URIs; an empty pointer means no image.
package models
