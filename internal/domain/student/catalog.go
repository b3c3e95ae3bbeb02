package student

// DefaultPrograms is the program catalog loaded by `domains seed`. Each
// name classifies to a degree prefix and a department with a seat range.
func DefaultPrograms() []Program {
	return []Program{
		{Name: "B.Tech CSE", Batch: "2024", Capacity: 200, Qualification: "10+2 with Mathematics"},
		{Name: "B.Tech ECE", Batch: "2024", Capacity: 100, Qualification: "10+2 with Mathematics"},
		{Name: "M.Tech CSE", Batch: "2024", Capacity: 60, Qualification: "B.Tech or equivalent"},
		{Name: "IM.Tech AIDS", Batch: "2024", Capacity: 100, Qualification: "10+2 with Mathematics"},
		{Name: "MS by Research CSE", Batch: "2024", Capacity: 30, Qualification: "B.Tech or equivalent"},
	}
}
