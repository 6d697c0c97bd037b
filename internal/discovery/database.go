// internal/discovery/database.go
package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[uint16]*ProductInfo
}

// ProductInfo contains product-specific information
type ProductInfo struct {
	Model string
	// USBSerial marks adapters that show up as a serial port
	USBSerial bool
	// Driver is the registry key of the instrument behind this product, if known
	Driver string
}

// DeviceDatabase contains known USB products for identification
type DeviceDatabase struct {
	vendors map[uint16]*VendorInfo
}

// NewDeviceDatabase creates and initializes the device database
func NewDeviceDatabase() *DeviceDatabase {
	db := &DeviceDatabase{vendors: make(map[uint16]*VendorInfo)}
	db.initializeDatabase()
	return db
}

func (db *DeviceDatabase) initializeDatabase() {
	// USB-serial bridges found in lab instruments and their cables
	db.AddVendor(0x0403, "Future Technology Devices International")
	db.AddProduct(0x0403, 0x6001, &ProductInfo{Model: "FT232R USB UART", USBSerial: true})
	db.AddProduct(0x0403, 0x6010, &ProductInfo{Model: "FT2232 Dual UART", USBSerial: true})
	db.AddProduct(0x0403, 0x6014, &ProductInfo{Model: "FT232H", USBSerial: true})
	db.AddProduct(0x0403, 0x6015, &ProductInfo{Model: "FT231X", USBSerial: true})

	db.AddVendor(0x067B, "Prolific Technology")
	db.AddProduct(0x067B, 0x2303, &ProductInfo{Model: "PL2303 Serial Port", USBSerial: true})
	db.AddProduct(0x067B, 0x23A3, &ProductInfo{Model: "PL2303GC Serial Port", USBSerial: true})

	db.AddVendor(0x10C4, "Silicon Labs")
	db.AddProduct(0x10C4, 0xEA60, &ProductInfo{Model: "CP210x UART Bridge", USBSerial: true})
	db.AddProduct(0x10C4, 0xEA70, &ProductInfo{Model: "CP2105 Dual UART Bridge", USBSerial: true})

	db.AddVendor(0x1A86, "QinHeng Electronics")
	db.AddProduct(0x1A86, 0x7523, &ProductInfo{Model: "CH340 Serial Converter", USBSerial: true})
	db.AddProduct(0x1A86, 0x55D4, &ProductInfo{Model: "CH9102 Serial Converter", USBSerial: true})

	db.AddVendor(0x2341, "Arduino SA")
	db.AddProduct(0x2341, 0x0043, &ProductInfo{Model: "Uno R3", USBSerial: true})
	db.AddProduct(0x2341, 0x0042, &ProductInfo{Model: "Mega 2560 R3", USBSerial: true})
}

// AddVendor registers a vendor
func (db *DeviceDatabase) AddVendor(vendorID uint16, name string) {
	if _, ok := db.vendors[vendorID]; ok {
		return
	}
	db.vendors[vendorID] = &VendorInfo{Name: name, products: make(map[uint16]*ProductInfo)}
}

// AddProduct registers a product of a known vendor
func (db *DeviceDatabase) AddProduct(vendorID, productID uint16, info *ProductInfo) {
	vendor, ok := db.vendors[vendorID]
	if !ok {
		return
	}
	vendor.products[productID] = info
}

// IsKnownVendor checks the vendor table
func (db *DeviceDatabase) IsKnownVendor(vendorID uint16) bool {
	_, ok := db.vendors[vendorID]
	return ok
}

// Lookup returns vendor and product info; either may be nil
func (db *DeviceDatabase) Lookup(vendorID, productID uint16) (*VendorInfo, *ProductInfo) {
	vendor, ok := db.vendors[vendorID]
	if !ok {
		return nil, nil
	}
	return vendor, vendor.products[productID]
}

// Describe fills vendor and product details of d from the database
func (db *DeviceDatabase) Describe(d *DiscoveredDevice, vendorID, productID uint16) {
	d.VendorID = FormatID(vendorID)
	d.ProductID = FormatID(productID)

	vendor, product := db.Lookup(vendorID, productID)
	if vendor != nil && d.Manufacturer == "" {
		d.Manufacturer = vendor.Name
	}
	if product != nil {
		if d.Description == "" {
			d.Description = product.Model
		}
		d.Driver = product.Driver
	}
}

// FormatID renders a USB ID as 0xVVVV
func FormatID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}

// ParseID reads a USB ID in hex with or without 0x
func ParseID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB id %q: %w", s, err)
	}
	return uint16(v), nil
}
