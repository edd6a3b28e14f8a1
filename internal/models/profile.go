package models

import "time"

// Profile holds the role-specific attributes of an account. Authentication
// never reads it; it is stored encrypted and returned on registration.
type Profile struct {
	Personal     PersonalInfo      `json:"personalInfo" bson:"personalInfo"`
	Contact      ContactInfo       `json:"contact" bson:"contact"`
	Address      Address           `json:"address" bson:"address"`
	Academic     *AcademicInfo     `json:"academic,omitempty" bson:"academic,omitempty"`
	Parent       *ParentInfo       `json:"parentInfo,omitempty" bson:"parentInfo,omitempty"`
	Professional *ProfessionalInfo `json:"professional,omitempty" bson:"professional,omitempty"`
}

type PersonalInfo struct {
	DateOfBirth  time.Time `json:"dateOfBirth" bson:"dateOfBirth"`
	Age          int       `json:"age" bson:"age"`
	Gender       string    `json:"gender" bson:"gender"`
	BloodGroup   string    `json:"bloodGroup,omitempty" bson:"bloodGroup,omitempty"`
	Nationality  string    `json:"nationality" bson:"nationality"`
	ProfileImage string    `json:"profileImage" bson:"profileImage"`
}

type ContactInfo struct {
	Phone            string `json:"phone" bson:"phone"`
	EmergencyContact string `json:"emergencyContact" bson:"emergencyContact"`
	EmergencyName    string `json:"emergencyName" bson:"emergencyName"`
}

type Address struct {
	Street  string `json:"street" bson:"street"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state" bson:"state"`
	Pincode string `json:"pincode" bson:"pincode"`
	Country string `json:"country" bson:"country"`
}

// AcademicInfo is student-only.
type AcademicInfo struct {
	Course         string  `json:"course" bson:"course"`
	Specialization string  `json:"specialization" bson:"specialization"`
	AcademicYear   string  `json:"academicYear" bson:"academicYear"`
	Semester       int     `json:"semester" bson:"semester"`
	Section        string  `json:"section" bson:"section"`
	RollNumber     string  `json:"rollNumber" bson:"rollNumber"`
	Batch          string  `json:"batch,omitempty" bson:"batch,omitempty"`
	CGPA           float64 `json:"cgpa" bson:"cgpa"`
	Attendance     float64 `json:"attendance" bson:"attendance"`
}

// ParentInfo is student-only.
type ParentInfo struct {
	FatherName       string `json:"fatherName" bson:"fatherName"`
	MotherName       string `json:"motherName" bson:"motherName"`
	FatherOccupation string `json:"fatherOccupation" bson:"fatherOccupation"`
	MotherOccupation string `json:"motherOccupation" bson:"motherOccupation"`
	ParentPhone      string `json:"parentPhone" bson:"parentPhone"`
	ParentEmail      string `json:"parentEmail,omitempty" bson:"parentEmail,omitempty"`
	AnnualIncome     string `json:"annualIncome" bson:"annualIncome"`
}

// ProfessionalInfo covers teachers and admins; fields not used by a role
// stay empty.
type ProfessionalInfo struct {
	EmployeeID    string    `json:"employeeId" bson:"employeeId"`
	Department    string    `json:"department" bson:"department"`
	Designation   string    `json:"designation" bson:"designation"`
	Qualification []string  `json:"qualification" bson:"qualification"`
	Experience    int       `json:"experience" bson:"experience"`
	JoiningDate   time.Time `json:"joiningDate" bson:"joiningDate"`
	Salary        float64   `json:"salary" bson:"salary"`

	// Teacher
	MainSubject     string   `json:"mainSubject,omitempty" bson:"mainSubject,omitempty"`
	TakenSubjects   []string `json:"takenSubjects,omitempty" bson:"takenSubjects,omitempty"`
	IsClassTeacher  bool     `json:"isClassTeacher,omitempty" bson:"isClassTeacher,omitempty"`
	AssignedClasses []string `json:"assignedClasses,omitempty" bson:"assignedClasses,omitempty"`

	// Admin
	Work        string   `json:"work,omitempty" bson:"work,omitempty"`
	IsMainAdmin bool     `json:"isMainAdmin,omitempty" bson:"isMainAdmin,omitempty"`
	Permissions []string `json:"permissions,omitempty" bson:"permissions,omitempty"`
	AccessLevel string   `json:"accessLevel,omitempty" bson:"accessLevel,omitempty"`
	ReportingTo string   `json:"reportingTo,omitempty" bson:"reportingTo,omitempty"`
}

// AdminPermissions is the full permission set granted to a main admin.
var AdminPermissions = []string{
	"user_management",
	"student_management",
	"teacher_management",
	"attendance_management",
	"marks_management",
	"fee_management",
	"reports_view",
	"reports_generate",
	"system_settings",
	"database_backup",
	"notice_management",
	"course_management",
}

// Normalize fills derived fields: age and experience from dates, defaults,
// and the main-admin access level.
func (p *Profile) Normalize(role Role, now time.Time) {
	if !p.Personal.DateOfBirth.IsZero() {
		p.Personal.Age = YearsBetween(p.Personal.DateOfBirth, now)
	}
	if p.Personal.Nationality == "" {
		p.Personal.Nationality = "Indian"
	}
	if p.Address.Country == "" {
		p.Address.Country = "India"
	}

	if role == RoleStudent {
		p.Professional = nil
		return
	}
	p.Academic = nil
	p.Parent = nil

	prof := p.Professional
	if prof == nil {
		return
	}
	if !prof.JoiningDate.IsZero() {
		prof.Experience = max(0, YearsBetween(prof.JoiningDate, now))
	}
	if role != RoleAdmin {
		return
	}
	if prof.IsMainAdmin {
		prof.AccessLevel = "full"
		prof.Permissions = append([]string(nil), AdminPermissions...)
		prof.ReportingTo = ""
	} else if prof.AccessLevel == "" {
		prof.AccessLevel = "limited"
	}
}

// YearsBetween counts whole years elapsed from start to now.
func YearsBetween(start, now time.Time) int {
	years := now.Year() - start.Year()
	if now.Month() < start.Month() || (now.Month() == start.Month() && now.Day() < start.Day()) {
		years--
	}
	return years
}
