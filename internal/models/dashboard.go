package models

// DashboardStats summarizes the store for the admin panel
type DashboardStats struct {
	TotalRevenue     float64   `json:"totalRevenue"`
	OrderCount       int       `json:"orderCount"`
	PendingOrders    int       `json:"pendingOrders"`
	ProductCount     int       `json:"productCount"`
	CustomerCount    int       `json:"customerCount"`
	LowStockProducts []Product `json:"lowStockProducts"`
	RecentOrders     []Order   `json:"recentOrders"`
}
